/*
Package rabbitmq carries queued commands, queued listeners and integration
events over AMQP. Jobs are routed through the default exchange by queue name;
integration events go to the durable "integration" topic exchange. The
connection-backed publisher redials on loss.
*/
package rabbitmq
