// Package logging assembles the structured slog loggers used by the irodsd
// supervisor and its worker processes.
//
// Console output is rendered as compact key=value lines for operators; the
// optional log file always receives JSON so supervisor and worker lines can be
// merged and filtered after the fact. Every process tags its lines with the
// session ID shared by one supervisor run.
package logging
