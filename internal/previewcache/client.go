package previewcache

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// RequestPreview is the client half of the RPC, used by the hidden preview
// child process: dial the socket named in EnvSocketName, write one request
// line, read one response line. Socket timeout is wait_ms/1000 + 2s, per
// spec, to comfortably exceed the server's own wait_ms bound.
func RequestPreview(socketName, archiveName string, waitMs int) (Response, error) {
	timeout := time.Duration(waitMs)*time.Millisecond + 2*time.Second
	conn, err := net.DialTimeout("unix", socketName, timeout)
	if err != nil {
		return Response{}, fmt.Errorf("connecting to preview socket: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	req := Request{Op: "get_preview", Archive: archiveName, WaitMs: waitMs}
	data, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encoding preview request: %w", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return Response{}, fmt.Errorf("writing preview request: %w", err)
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return Response{}, fmt.Errorf("reading preview response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, fmt.Errorf("decoding preview response: %w", err)
	}
	return resp, nil
}

// RequestPrefetch fires a prefetch for archiveName and does not wait for
// the result; the response is discarded (any error is returned, but
// callers typically ignore it — prefetch failures are silent by design).
func RequestPrefetch(socketName, archiveName string) error {
	conn, err := net.DialTimeout("unix", socketName, 2*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	req := Request{Op: "prefetch", Archive: archiveName}
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return err
	}

	reader := bufio.NewReader(conn)
	_, err = reader.ReadBytes('\n')
	return err
}
