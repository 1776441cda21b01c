// Package logging builds the slog logger used by the recgate binaries: JSON
// for machines, or a compact colorized line format for terminals.
package logging
