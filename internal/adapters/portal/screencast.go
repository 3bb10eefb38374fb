package portal

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/veilcap/veilcap/internal/domain"
)

// ScreenCast source type and cursor mode bits.
const (
	sourceTypeMonitor uint32 = 1
	cursorModeHidden  uint32 = 1
)

// portalStream is one display stream granted by the portal.
type portalStream struct {
	nodeID   uint32
	position [2]int32
	size     [2]int32
}

// castSession is one open ScreenCast portal session.
type castSession struct {
	conn    *dbus.Conn
	path    dbus.ObjectPath
	streams []portalStream
}

// openCastSession runs the portal handshake: CreateSession,
// SelectSources for all monitors, then Start. Start may pop a consent
// dialog; a user cancel surfaces as an error.
func openCastSession(ctx context.Context, conn *dbus.Conn) (*castSession, error) {
	status, results, err := requestCall(ctx, conn, screenCastIface+".CreateSession", map[string]dbus.Variant{
		"session_handle_token": dbus.MakeVariant(generateToken()),
	})
	if err != nil {
		return nil, fmt.Errorf("portal CreateSession: %w", err)
	}
	if status != responseSuccess {
		return nil, refusalError("CreateSession", status)
	}
	handle, ok := results["session_handle"]
	if !ok {
		return nil, fmt.Errorf("portal CreateSession: missing session_handle")
	}
	sessionPath, ok := handle.Value().(string)
	if !ok {
		return nil, fmt.Errorf("portal CreateSession: %w", errUnexpectedResponse)
	}

	sess := &castSession{conn: conn, path: dbus.ObjectPath(sessionPath)}

	status, _, err = requestCall(ctx, conn, screenCastIface+".SelectSources", map[string]dbus.Variant{
		"types":       dbus.MakeVariant(sourceTypeMonitor),
		"multiple":    dbus.MakeVariant(true),
		"cursor_mode": dbus.MakeVariant(cursorModeHidden),
	}, sess.path)
	if err != nil {
		sess.close()
		return nil, fmt.Errorf("portal SelectSources: %w", err)
	}
	if status != responseSuccess {
		sess.close()
		return nil, refusalError("SelectSources", status)
	}

	status, results, err = requestCall(ctx, conn, screenCastIface+".Start",
		map[string]dbus.Variant{}, sess.path, "")
	if err != nil {
		sess.close()
		return nil, fmt.Errorf("portal Start: %w", err)
	}
	if status != responseSuccess {
		sess.close()
		return nil, refusalError("Start", status)
	}

	sess.streams = parseStreams(results)
	if len(sess.streams) == 0 {
		sess.close()
		return nil, fmt.Errorf("portal Start granted no streams")
	}
	return sess, nil
}

func (s *castSession) close() {
	obj := s.conn.Object(portalDest, s.path)
	_ = obj.Call(sessionCloseMethod, 0).Err
}

// displays maps the granted streams to capture targets. The PipeWire
// node id doubles as the display id.
func (s *castSession) displays() []domain.Display {
	out := make([]domain.Display, 0, len(s.streams))
	for _, st := range s.streams {
		out = append(out, domain.Display{
			ID:     domain.DisplayID(st.nodeID),
			Width:  int(st.size[0]),
			Height: int(st.size[1]),
			Bounds: domain.Rect{
				X: int(st.position[0]),
				Y: int(st.position[1]),
				W: int(st.size[0]),
				H: int(st.size[1]),
			},
		})
	}
	return out
}

func parseStreams(results map[string]dbus.Variant) []portalStream {
	variant, ok := results["streams"]
	if !ok {
		return nil
	}

	var raw [][]any
	switch v := variant.Value().(type) {
	case [][]any:
		raw = v
	case []any:
		for _, entry := range v {
			if s, ok := entry.([]any); ok {
				raw = append(raw, s)
			}
		}
	default:
		return nil
	}

	var streams []portalStream
	for _, entry := range raw {
		if len(entry) < 2 {
			continue
		}
		st := portalStream{}
		if nodeID, ok := entry[0].(uint32); ok {
			st.nodeID = nodeID
		}
		if props, ok := entry[1].(map[string]dbus.Variant); ok {
			if pos, ok := props["position"]; ok {
				if pair, ok := int32Pair(pos.Value()); ok {
					st.position = pair
				}
			}
			if size, ok := props["size"]; ok {
				if pair, ok := int32Pair(size.Value()); ok {
					st.size = pair
				}
			}
		}
		if st.size[0] > 0 && st.size[1] > 0 {
			streams = append(streams, st)
		}
	}
	return streams
}

func int32Pair(value any) ([2]int32, bool) {
	values, ok := value.([]any)
	if !ok || len(values) < 2 {
		return [2]int32{}, false
	}
	a, ok := values[0].(int32)
	if !ok {
		return [2]int32{}, false
	}
	b, ok := values[1].(int32)
	if !ok {
		return [2]int32{}, false
	}
	return [2]int32{a, b}, true
}
