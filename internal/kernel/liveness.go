package kernel

import (
	"context"

	"github.com/agentmesh/orchestrator/pkg/wire"
)

// handlePing replies pong on any hub; used by all three peer kinds as a
// connection keepalive independent of the websocket-level ping/pong the hub
// already performs.
func handlePing(ctx context.Context, k *Kernel, kind wire.OriginKind, connectionID string, msg *wire.Message) error {
	reply, err := wire.NewReply(newID(), wire.TypePong, msg.ID, map[string]interface{}{"timestamp": msg.Timestamp})
	if err != nil {
		return err
	}
	k.reply(kind, connectionID, reply)
	return nil
}
