// Package stores provides the AccountStore implementations of the authx engine:
// an in-memory store for development and tests, a Redis store, and a PostgreSQL store.
//
// # Consistency
//
// Every implementation satisfies the atomicity contract of authx.AccountStore. Create
// is an insert-if-unique on email and username; the Consume methods are single
// find-and-update steps. The memory store holds one mutex, the Redis store runs each
// mutation as a Lua script, and the PostgreSQL store relies on unique constraints and
// conditional UPDATE ... RETURNING statements.
//
// # What this package must NOT do
//
//   - Generate codes, hash passwords, or make authentication decisions.
//   - Log or expose password digests.
package stores
