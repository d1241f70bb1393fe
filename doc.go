// Package accounts implements the account lifecycle of the VerseHub API:
// registration, email verification, login and password reset.
//
// Account lifecycle:
//   - Accounts carry an AccountStatus persisted via Bun. An account starts in
//     created and moves to registered once the emailed link or the
//     registration key proves ownership of the address.
//   - AccountStateMachine owns the transition graph and persistence. Every
//     status change goes through Transition inside the caller's transaction
//     and emits an account.status.changed activity event.
//
// Secrets:
//   - Passwords, verification tokens, OTPs and reset tokens are stored only as
//     bcrypt digests. Plaintext values leave the process through the Notifier
//     and nowhere else.
//
// Activity sinks:
//   - ActivitySink is a best-effort audit emitter used by the handlers and the
//     state machine. Sink errors are logged and never fail the operation, so a
//     sink can forward to metrics, logs or a queue.
//
// Commands follow a message/handler pattern: build a message, call
// Execute on the handler and receive results through OnResponse.
package accounts
