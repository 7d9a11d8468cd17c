package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateDocumentAgainstDefaultSchema(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{name: "empty", doc: ""},
		{name: "valid", doc: "[mailbox]\ncapacity = 3\ndriver = \"sqlite\"\n"},
		{name: "capacity zero", doc: "[mailbox]\ncapacity = 0\n", wantErr: true},
		{name: "wrong type", doc: "[control_plane]\nbind = 9000\n", wantErr: true},
		{name: "unknown driver", doc: "[mailbox]\ndriver = \"redis\"\n", wantErr: true},
		{name: "unknown section", doc: "[irods]\nzone = \"tempZone\"\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateDocument([]byte(tt.doc), []byte(DefaultSchema()))
			if tt.wantErr && err == nil {
				t.Fatal("expected schema violation")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateSchemaFileUsesCustomSchema(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	schemaPath := filepath.Join(dir, "schema.json")
	if err := os.WriteFile(configPath, []byte("[logging]\nlevel = \"debug\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	strict := `{"type":"object","properties":{"logging":{"type":"object","properties":{"level":{"const":"info"}}}}}`
	if err := os.WriteFile(schemaPath, []byte(strict), 0o644); err != nil {
		t.Fatalf("write schema: %v", err)
	}

	err := ValidateSchemaFile(configPath, schemaPath)
	if err == nil || !strings.Contains(err.Error(), "does not match schema") {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
	if err := ValidateSchemaFile(configPath, filepath.Join(dir, "absent.json")); err == nil {
		t.Fatal("expected error for missing schema file")
	}
	if err := ValidateSchema(filepath.Join(dir, "absent.toml"), nil); err != nil {
		t.Fatalf("missing config should validate trivially: %v", err)
	}
}
