// Package stores keeps the run history of provisioning sessions in SQLite.
//
// A session spans both processes of a relaunch, so the restarted process
// reopens the same session row instead of creating a new one. Each session
// has the outcome of every provisioning step and a copy of every line written
// to the error log. The flat error log stays the source of truth; the store
// exists for `gpuprep history`.
package stores
