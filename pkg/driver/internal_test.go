package driver

import (
	"errors"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsFunction(t *testing.T) {
	assert.Equal(t, `() => {return document.title}`, asFunction("return document.title"))
}

func TestIsNoSuchElement(t *testing.T) {
	assert.True(t, isNoSuchElement(errors.New("no such element: Unable to locate element")))
	assert.False(t, isNoSuchElement(errors.New("stale element reference")))
}

func TestFreePort(t *testing.T) {
	port, err := freePort()
	require.NoError(t, err)
	assert.Greater(t, port, 0)

	l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err, "port should be free again after probing")
	l.Close()
}
