// Package portal captures displays through the xdg-desktop-portal
// ScreenCast interface. The portal hands out PipeWire node ids; frame
// and audio delivery run over helper processes reading those nodes.
package portal

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	portalDest = "org.freedesktop.portal.Desktop"
	portalPath = "/org/freedesktop/portal/desktop"

	screenCastIface    = "org.freedesktop.portal.ScreenCast"
	requestIface       = "org.freedesktop.portal.Request"
	sessionIface       = "org.freedesktop.portal.Session"
	responseMember     = "Response"
	sessionCloseMethod = sessionIface + ".Close"
)

// Portal request response statuses.
const (
	responseSuccess   uint32 = 0
	responseCancelled uint32 = 1
)

var errUnexpectedResponse = errors.New("unexpected response from portal")

// senderToken mangles a unique bus name into the form the portal uses
// in request object paths: leading colon stripped, dots to underscores.
func senderToken(name string) string {
	return strings.ReplaceAll(strings.TrimPrefix(name, ":"), ".", "_")
}

// requestPath predicts the request object path the portal will use for
// a call carrying the given handle token.
func requestPath(conn *dbus.Conn, token string) dbus.ObjectPath {
	return dbus.ObjectPath(portalPath + "/request/" + senderToken(conn.Names()[0]) + "/" + token)
}

// requestCall issues one portal request method and waits for its
// Response signal. The signal match is registered on the predicted
// request path before the method call goes out, so a Response emitted
// right after the method return cannot be missed. Portals predating
// the predictable-path convention return a different request handle;
// that handle is matched as well once known.
func requestCall(ctx context.Context, conn *dbus.Conn, method string, opts map[string]dbus.Variant, args ...any) (uint32, map[string]dbus.Variant, error) {
	token := generateToken()
	opts["handle_token"] = dbus.MakeVariant(token)
	predicted := requestPath(conn, token)

	matchOpts := func(path dbus.ObjectPath) []dbus.MatchOption {
		return []dbus.MatchOption{
			dbus.WithMatchObjectPath(path),
			dbus.WithMatchInterface(requestIface),
			dbus.WithMatchMember(responseMember),
		}
	}

	if err := conn.AddMatchSignal(matchOpts(predicted)...); err != nil {
		return 0, nil, err
	}
	matched := []dbus.ObjectPath{predicted}
	defer func() {
		for _, p := range matched {
			_ = conn.RemoveMatchSignal(matchOpts(p)...)
		}
	}()

	signals := make(chan *dbus.Signal, 4)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	call := conn.Object(portalDest, portalPath).Call(method, 0, append(args, opts)...)
	if call.Err != nil {
		return 0, nil, call.Err
	}
	handle := predicted
	if err := call.Store(&handle); err != nil {
		return 0, nil, err
	}
	if handle != predicted {
		if err := conn.AddMatchSignal(matchOpts(handle)...); err != nil {
			return 0, nil, err
		}
		matched = append(matched, handle)
	}

	for {
		select {
		case sig := <-signals:
			if sig.Path != predicted && sig.Path != handle {
				continue
			}
			return parseResponse(sig)
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		}
	}
}

// parseResponse unpacks the (status, results) body of a Request
// Response signal.
func parseResponse(sig *dbus.Signal) (uint32, map[string]dbus.Variant, error) {
	if len(sig.Body) != 2 {
		return 0, nil, errUnexpectedResponse
	}
	status, ok := sig.Body[0].(uint32)
	if !ok {
		return 0, nil, errUnexpectedResponse
	}
	results, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return 0, nil, errUnexpectedResponse
	}
	return status, results, nil
}

// refusalError distinguishes an explicit user cancel from other
// non-success statuses.
func refusalError(call string, status uint32) error {
	if status == responseCancelled {
		return fmt.Errorf("portal %s cancelled by user", call)
	}
	return fmt.Errorf("portal %s refused (status %d)", call, status)
}

// generateToken produces a portal handle token.
func generateToken() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<31))
	if err != nil {
		return "veilcap0"
	}
	return fmt.Sprintf("veilcap%d", n)
}
