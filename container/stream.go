package container

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/docker/docker/pkg/stdcopy"
)

// demuxStream splits the multiplexed stdout/stderr stream the Engine API
// returns for attached execs into separate buffers.
func demuxStream(r io.Reader) (stdout string, stderr string, err error) {
	var outBuf, errBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, r); err != nil && err != io.EOF {
		return "", "", err
	}
	return outBuf.String(), errBuf.String(), nil
}

func decodeJSON(r io.Reader, v interface{}) error {
	return json.NewDecoder(r).Decode(v)
}
