// Package commands answers the owner's /task command and the reminder's
// role toggle button. Every reply is ephemeral.
package commands
