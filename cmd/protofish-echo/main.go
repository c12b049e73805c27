// Command protofish-echo is a runnable demonstration of the protofish/
// quicfish stack: a server that echoes ArbitaryData contexts and answers
// reliable sub-stream requests, and a client mode that exercises the
// handshake, an echoed context, a reliable sub-stream, and (optionally) a
// throughput benchmark against it. Flag layout and logger setup follow the
// teacher's server/main.go and client/main.go.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/termermc/protofish/protofish"
	"github.com/termermc/protofish/quicfish"
	"github.com/termermc/protofish/quicfish/tlsutil"
)

func main() {
	mode := flag.String("mode", "server", "server, client, or bench-client")
	configPath := flag.String("config", "protofish-echo.json", "path to the JSON config file")
	addr := flag.String("addr", "", "server address to dial (client modes only; overrides config listen address)")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := LoadOrCreate(*configPath)
	if err != nil {
		log.Error("load config", "err", err)
		os.Exit(1)
	}

	switch *mode {
	case "server":
		if err := runServer(log, cfg); err != nil {
			log.Error("server exited", "err", err)
			os.Exit(1)
		}
	case "client":
		dialAddr := *addr
		if dialAddr == "" {
			dialAddr = cfg.Listen
		}
		if err := runClient(log, dialAddr, false, cfg.BenchmarkBytes); err != nil {
			log.Error("client exited", "err", err)
			os.Exit(1)
		}
	case "bench-client":
		dialAddr := *addr
		if dialAddr == "" {
			dialAddr = cfg.Listen
		}
		if err := runClient(log, dialAddr, true, cfg.BenchmarkBytes); err != nil {
			log.Error("bench-client exited", "err", err)
			os.Exit(1)
		}
	default:
		log.Error("unknown -mode", "mode", *mode)
		os.Exit(1)
	}
}

func runServer(log *slog.Logger, cfg *EchoConfig) error {
	cert, err := tlsutil.ReadOrCreatePem(cfg.PemPath, "protofish-echo")
	if err != nil {
		return fmt.Errorf("load server cert: %w", err)
	}
	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{quicfish.ALPN},
	}

	listener, err := quicfish.Listen(cfg.Listen, tlsConf, log)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer listener.Close()

	log.Info("protofish-echo server listening", "addr", cfg.Listen)

	ctx := context.Background()
	for {
		utp, err := listener.Accept(ctx)
		if err != nil {
			return fmt.Errorf("accept: %w", err)
		}
		go serveConn(ctx, log, utp)
	}
}

func serveConn(ctx context.Context, log *slog.Logger, utp *quicfish.QuicUTP) {
	defer utp.Close()

	conn, err := protofish.Accept(ctx, utp, log)
	if err != nil {
		log.Warn("handshake failed", "err", err)
		return
	}
	defer conn.Close()

	for {
		arb, err := conn.NextArb()
		if err != nil {
			log.Debug("connection done", "err", err)
			return
		}
		go serveArb(ctx, log, utp, arb)
	}
}

// serveArb answers one context with whatever the §8 scenarios exercise:
// an echoed ArbitaryData, a reliable sub-stream echo, or a benchmark sink
// that reads ByteCount bytes and reports elapsed time.
func serveArb(ctx context.Context, log *slog.Logger, utp protofish.UTP, arb *protofish.ArbContext) {
	payload, err := arb.ReadPayload()
	if err != nil {
		log.Debug("context closed before first payload", "err", err)
		return
	}

	switch p := payload.(type) {
	case *protofish.ArbitaryData:
		if err := arb.Write(p.Content); err != nil {
			log.Warn("echo write failed", "err", err)
		}
	case *protofish.StreamOpen:
		// ReadPayload has already consumed the StreamOpen, so resolve the
		// announced stream directly rather than through arb.WaitStream.
		stream, err := utp.WaitStream(ctx, p.StreamId, p.Meta.IntegrityType.Normalized())
		if err != nil {
			log.Warn("wait_stream failed", "err", err)
			return
		}
		writer, reader := stream.Split()
		if _, err := io.Copy(writer, reader); err != nil && err != io.EOF {
			log.Warn("sub-stream echo failed", "err", err)
		}
		_ = writer.Close()
	case *protofish.BenchmarkStart:
		serveBenchmark(arb, p)
	default:
		log.Warn("unexpected first payload on context", "type", payload.Type())
	}
}

func serveBenchmark(arb *protofish.ArbContext, start *protofish.BenchmarkStart) {
	stream, err := arb.WaitStream(context.Background())
	if err != nil {
		return
	}
	_, reader := stream.Split()

	begin := time.Now()
	n, _ := io.Copy(io.Discard, io.LimitReader(reader, int64(start.ByteCount)))
	elapsed := time.Since(begin)

	_ = arb.WritePayload(&protofish.BenchmarkEnd{})
	slog.Default().Info("benchmark sink done",
		"bytes", humanize.Bytes(uint64(n)),
		"elapsed", elapsed,
		"rate", humanize.Bytes(uint64(float64(n)/elapsed.Seconds()))+"/s",
	)
}

func runClient(log *slog.Logger, addr string, bench bool, benchBytes uint64) error {
	if addr == "" {
		return fmt.Errorf("no server address given (pass -addr or set listen in config)")
	}

	tlsConf := tlsutil.InsecureClientTLSConfig(quicfish.ALPN)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	utp, err := quicfish.Dial(ctx, addr, tlsConf, log)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer utp.Close()

	conn, err := protofish.Connect(ctx, utp, log)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	defer conn.Close()

	echoArb := conn.NewArb()
	if err := echoArb.Write([]byte("muffin")); err != nil {
		return fmt.Errorf("echo write: %w", err)
	}
	reply, err := echoArb.Read()
	if err != nil {
		return fmt.Errorf("echo read: %w", err)
	}
	log.Info("echo round trip", "sent", "muffin", "got", string(reply))

	streamArb := conn.NewArb()
	stream, err := streamArb.NewStream(ctx, protofish.IntegrityReliable)
	if err != nil {
		return fmt.Errorf("new_stream: %w", err)
	}
	writer, reader := stream.Split()
	if _, err := writer.Write([]byte("muffinmuffin")); err != nil {
		return fmt.Errorf("sub-stream write: %w", err)
	}
	writer.Close()
	echoed, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("sub-stream read: %w", err)
	}
	log.Info("reliable sub-stream round trip", "got", string(echoed))

	if !bench {
		return nil
	}
	return runBenchmark(ctx, conn, benchBytes)
}

func runBenchmark(ctx context.Context, conn *protofish.Connection, byteCount uint64) error {
	arb := conn.NewArb()
	if err := arb.WritePayload(&protofish.BenchmarkStart{
		IntegrityType: protofish.IntegrityReliable,
		ByteCount:     byteCount,
	}); err != nil {
		return fmt.Errorf("benchmark_start: %w", err)
	}

	stream, err := arb.NewStream(ctx, protofish.IntegrityReliable)
	if err != nil {
		return fmt.Errorf("benchmark new_stream: %w", err)
	}
	writer, _ := stream.Split()

	begin := time.Now()
	chunk := make([]byte, 64<<10)
	var sent uint64
	for sent < byteCount {
		n := uint64(len(chunk))
		if remaining := byteCount - sent; remaining < n {
			n = remaining
		}
		if _, err := writer.Write(chunk[:n]); err != nil {
			return fmt.Errorf("benchmark write: %w", err)
		}
		sent += n
	}
	writer.Close()

	if _, err := arb.ReadPayload(); err != nil {
		return fmt.Errorf("await benchmark_end: %w", err)
	}
	elapsed := time.Since(begin)
	rate := float64(sent) / elapsed.Seconds()
	slog.Default().Info("benchmark complete",
		"bytes", humanize.Bytes(sent),
		"elapsed", elapsed,
		"rate", humanize.Bytes(uint64(rate))+"/s",
	)
	return nil
}
