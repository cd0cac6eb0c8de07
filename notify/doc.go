// Package notify provides authx.Notifier implementations.
//
// SMTPNotifier renders HTML mail from embedded templates, AMQPNotifier publishes JSON
// email jobs to a durable queue for an external mail worker, and LogNotifier writes each
// notification to a zap logger for local development. None of them retries; retries and
// queueing belong to the Engine dispatcher.
package notify
