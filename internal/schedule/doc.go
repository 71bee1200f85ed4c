// Package schedule turns a post's declared recurrence rule into concrete
// future fire instants and keeps the in-memory registry of pending triggers.
package schedule
