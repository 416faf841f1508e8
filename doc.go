// Package imapsync synchronizes a remote IMAP account with a local
// mailbox store, in both directions.
//
// The engine is built from a few layers:
//
//   - A hand-rolled response parser (ResponseReader, ResponseText) that
//     turns raw server lines into typed values, including UIDPLUS
//     APPENDUID/COPYUID results
//   - A Dialer that owns one TLS connection and sequences one command at
//     a time (LOGIN/XOAUTH2, LIST, SELECT, UID FETCH, UID STORE, APPEND,
//     UID COPY, LOGOUT)
//   - A TrackerStore that persists, per local folder, the remote path,
//     hierarchy delimiter, UID validity and last synchronized UID
//   - A Syncer that reconciles the remote folder list against the local
//     folder tree and drives per-folder message synchronization
//
// Runs are strictly sequential per account; concurrent accounts each own
// their own connection. See the examples directory for end-to-end usage.
package imapsync
