// Package mqtt connects MOBAflow to an MQTT broker.
//
// The broker is an optional event bus: the relay publishes controller
// status, feedback, journey state and execution results under a topic
// prefix (default "mobaflow"), and accepts operator commands on
// {prefix}/command/#. Home automation or dashboards subscribe there
// without talking to the Z21 directly.
//
// The client reconnects with backoff, restores subscriptions, publishes
// a retained online/offline status and registers an LWT so subscribers
// notice a crashed service.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	_ = client.PublishJSON(topics.Feedback(5), event, false)
package mqtt
