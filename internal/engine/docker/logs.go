package docker

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/console"
	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/internal/linepipe"
)

type logSession struct {
	stream *linepipe.Stream
	cancel context.CancelFunc
}

func (s *logSession) Lines() console.LineStream { return s.stream }

func (s *logSession) Close() error {
	s.cancel()
	return nil
}

// StreamLogs opens the container's log stream. TTY containers produce a raw
// byte stream; non-TTY containers produce the daemon's multiplexed framing,
// which is demultiplexed into stdout and stderr lines.
func (e *Engine) StreamLogs(ctx context.Context, req console.LogStreamRequest) (console.LogSession, error) {
	detail, err := e.Inspect(ctx, req.Container)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("stdout", "true")
	query.Set("stderr", "true")
	if req.Follow {
		query.Set("follow", "true")
	}
	if !req.Since.IsZero() {
		query.Set("since", strconv.FormatInt(req.Since.Unix(), 10))
	}
	if req.Timestamps {
		query.Set("timestamps", "true")
	}
	if req.Tail > 0 {
		query.Set("tail", strconv.Itoa(req.Tail))
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	endpoint := fmt.Sprintf("/containers/%s/logs", url.PathEscape(detail.ID))
	res, err := e.client.do(streamCtx, http.MethodGet, endpoint, query, nil, "")
	if err != nil {
		cancel()
		return nil, err
	}
	if res.StatusCode >= 300 {
		err := readAPIError(res)
		_ = res.Body.Close()
		cancel()
		return nil, err
	}

	stream := linepipe.New(256, cancel)
	go func() {
		defer func() { _ = res.Body.Close() }()
		stdout := linepipe.NewLineWriter(streamCtx, stream, false)
		stderr := linepipe.NewLineWriter(streamCtx, stream, true)
		var err error
		if detail.TTY {
			_, err = io.Copy(stdout, res.Body)
		} else {
			err = demuxStream(res.Body, stdout, stderr)
		}
		stdout.Flush()
		stderr.Flush()
		stream.Finish(err)
	}()

	e.logger.Debug("log stream opened", "container", detail.ID, "follow", req.Follow)
	return &logSession{stream: stream, cancel: cancel}, nil
}

// demuxStream decodes the Docker attach framing: an 8-byte header carrying
// the stream id and a big-endian payload length, followed by the payload.
func demuxStream(r io.Reader, stdout, stderr io.Writer) error {
	header := make([]byte, 8)
	buf := make([]byte, 32*1024)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return err
		}
		size := binary.BigEndian.Uint32(header[4:8])
		dst := stdout
		if header[0] == 2 {
			dst = stderr
		}
		remaining := int64(size)
		for remaining > 0 {
			chunk := buf
			if remaining < int64(len(chunk)) {
				chunk = chunk[:remaining]
			}
			n, err := r.Read(chunk)
			if n > 0 {
				if _, werr := dst.Write(chunk[:n]); werr != nil {
					return werr
				}
				remaining -= int64(n)
			}
			if err != nil {
				if err == io.EOF && remaining == 0 {
					break
				}
				return err
			}
		}
	}
}
