// Package dispatch runs intents asynchronously. Submitted requests are
// persisted in a Store, their IDs travel over a Queue (memory, Redis or
// RabbitMQ), and a Processor claims each one and drives it through the
// request pipeline. Requests that stop at a confirmation gate wait in
// awaiting_confirmation until Service.Confirm records an answer and
// republishes them. Nothing is retried.
package dispatch
