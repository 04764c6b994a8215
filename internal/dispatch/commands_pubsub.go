package dispatch

import (
	"hexagondb/internal/pubsub"
	"hexagondb/internal/resp"
)

func init() {
	register("SUBSCRIBE", 2, -1, false, false, cmdSubscribe)
	register("PSUBSCRIBE", 2, -1, false, false, cmdPSubscribe)
	register("UNSUBSCRIBE", 1, -1, false, false, cmdUnsubscribe)
	register("PUNSUBSCRIBE", 1, -1, false, false, cmdPUnsubscribe)
	register("PUBLISH", 3, 3, false, false, cmdPublish)
}

// cmdSubscribe and its siblings return only the confirmation for the last
// channel acted on; the connection loop sends one confirmation array per
// channel by inspecting conn.Channels/Patterns directly after the call.
func cmdSubscribe(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	if conn.Channels == nil {
		conn.Channels = make(map[string]*pubsub.Receiver)
	}
	conn.InSubscribe = true
	var last resp.Value
	for _, ch := range args[1:] {
		if _, already := conn.Channels[ch]; !already {
			conn.Channels[ch] = d.Broker.Subscribe(ch)
		}
		last = resp.Array([]resp.Value{
			resp.BulkString("subscribe"),
			resp.BulkString(ch),
			resp.Integer(int64(len(conn.Channels) + len(conn.Patterns))),
		})
	}
	return last, false, nil
}

func cmdPSubscribe(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	if conn.Patterns == nil {
		conn.Patterns = make(map[string]*pubsub.Receiver)
	}
	conn.InSubscribe = true
	var last resp.Value
	for _, pat := range args[1:] {
		if _, already := conn.Patterns[pat]; !already {
			conn.Patterns[pat] = d.Broker.PSubscribe(pat)
		}
		last = resp.Array([]resp.Value{
			resp.BulkString("psubscribe"),
			resp.BulkString(pat),
			resp.Integer(int64(len(conn.Channels) + len(conn.Patterns))),
		})
	}
	return last, false, nil
}

func cmdUnsubscribe(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	targets := args[1:]
	if len(targets) == 0 {
		for ch := range conn.Channels {
			targets = append(targets, ch)
		}
	}
	var last resp.Value
	for _, ch := range targets {
		if r, ok := conn.Channels[ch]; ok {
			d.Broker.Unsubscribe(ch, r)
			delete(conn.Channels, ch)
		}
		last = resp.Array([]resp.Value{
			resp.BulkString("unsubscribe"),
			resp.BulkString(ch),
			resp.Integer(int64(len(conn.Channels) + len(conn.Patterns))),
		})
	}
	conn.InSubscribe = len(conn.Channels)+len(conn.Patterns) > 0
	return last, false, nil
}

func cmdPUnsubscribe(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	targets := args[1:]
	if len(targets) == 0 {
		for pat := range conn.Patterns {
			targets = append(targets, pat)
		}
	}
	var last resp.Value
	for _, pat := range targets {
		if r, ok := conn.Patterns[pat]; ok {
			d.Broker.PUnsubscribe(pat, r)
			delete(conn.Patterns, pat)
		}
		last = resp.Array([]resp.Value{
			resp.BulkString("punsubscribe"),
			resp.BulkString(pat),
			resp.Integer(int64(len(conn.Channels) + len(conn.Patterns))),
		})
	}
	conn.InSubscribe = len(conn.Channels)+len(conn.Patterns) > 0
	return last, false, nil
}

func cmdPublish(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	n := d.Broker.Publish(args[1], []byte(args[2]))
	return resp.Integer(int64(n)), false, nil
}
