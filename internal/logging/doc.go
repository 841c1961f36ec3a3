// Package logging sets up structured JSON logging with size-based rotation.
// Logs go to ~/.ragsearch/logs/server.log. The serve command logs only to that
// file; other commands also mirror to stderr when --debug is set.
package logging
