package quicfish

import (
	"errors"
	"io"
	"net"

	"github.com/quic-go/quic-go"
	"github.com/termermc/protofish/protofish"
)

// classifyErr maps a quic-go error to a protofish.UTPError kind (§4.1,
// §7 "Transport (UTP)"): EOF and application-closed connections end the
// reader loop as an ordinary Io/EOF condition, errors reporting
// net.Error.Timeout() (idle timeouts among them) are Warn, and everything
// else is Fatal.
func classifyErr(context string, err error) *protofish.UTPError {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) {
		return &protofish.UTPError{Kind: protofish.UTPIo, Message: context, Cause: err}
	}

	var appErr *quic.ApplicationError
	if errors.As(err, &appErr) {
		return &protofish.UTPError{Kind: protofish.UTPIo, Message: context, Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &protofish.UTPError{Kind: protofish.UTPWarn, Message: context, Cause: err}
	}
	return &protofish.UTPError{Kind: protofish.UTPFatal, Message: context, Cause: err}
}
