// Package reminder owns the single pending bump reminder.
//
// A Service holds at most one Task. Schedule persists the fire time before the
// timer is armed, so a crash leaves enough on disk for Recover to re-arm the
// remaining duration on the next start. Expiry and Cancel race through the
// Task's state word: exactly one of them wins.
package reminder
