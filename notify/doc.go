// Package notify holds the Notifier transports used to deliver
// verification, registration key and password reset messages: a local
// outbox writer for development, SMTP, and a Kafka producer that hands
// mail events to a separate mail service.
package notify
