// Package memory is the durable key/content store the model reads and writes
// through the memory tool.
//
// Three implementations share one contract:
//   - FileStore keeps one Markdown file per record plus index.json.
//   - SQLiteStore keeps records in an embedded SQLite database.
//   - MemStore keeps records in process memory, for tests and throwaway sessions.
//
// Keys are unique. A supplied key that already exists is rejected unless the
// request sets Overwrite; a generated key that collides gets a random suffix.
package memory
