// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2023 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package fixeddata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsolateParticle(t *testing.T) {
	particle, hasNext := isolateParticle("path/to/my/mqtt", 0)
	require.Equal(t, "path", particle)
	require.Equal(t, true, hasNext)
	particle, hasNext = isolateParticle("path/to/my/mqtt", 1)
	require.Equal(t, "to", particle)
	require.Equal(t, true, hasNext)
	particle, hasNext = isolateParticle("path/to/my/mqtt", 2)
	require.Equal(t, "my", particle)
	require.Equal(t, true, hasNext)
	particle, hasNext = isolateParticle("path/to/my/mqtt", 3)
	require.Equal(t, "mqtt", particle)
	require.Equal(t, false, hasNext)

	particle, hasNext = isolateParticle("/path/", 0)
	require.Equal(t, "", particle)
	require.Equal(t, true, hasNext)
	particle, hasNext = isolateParticle("/path/", 1)
	require.Equal(t, "path", particle)
	require.Equal(t, true, hasNext)
	particle, hasNext = isolateParticle("/path/", 2)
	require.Equal(t, "", particle)
	require.Equal(t, false, hasNext)
}

func TestIsValidFilter(t *testing.T) {
	tt := []struct {
		filter string
		valid  bool
	}{
		{"data", true},
		{"sensors/+/temp", true},
		{"logs/#", true},
		{"#", true},
		{"", false},
		{"logs/#/more", false},
		{"logs/a#", false},
		{"logs/+b", false},
	}

	for _, tx := range tt {
		t.Run(tx.filter, func(t *testing.T) {
			require.Equal(t, tx.valid, IsValidFilter(tx.filter))
		})
	}
}

func TestIsWildcard(t *testing.T) {
	require.True(t, IsWildcard("a/+"))
	require.True(t, IsWildcard("a/#"))
	require.False(t, IsWildcard("a/b"))
}

func TestTopicsIndexAdd(t *testing.T) {
	x := NewTopicsIndex()
	require.True(t, x.Add("sensors/+/temp", &route{path: "sensors/+/temp"}))
	require.False(t, x.Add("sensors/+/temp", &route{path: "sensors/+/temp"}))
	require.False(t, x.Add("bad/#/filter", &route{}))
	require.True(t, x.Add("logs/#", &route{path: "logs/#"}))
	require.Equal(t, 2, x.Len())
}

func TestTopicsIndexMatch(t *testing.T) {
	x := NewTopicsIndex()
	require.True(t, x.Add("sensors/+/temp", &route{path: "sensors/+/temp"}))
	require.True(t, x.Add("sensors/kitchen/temp", &route{path: "sensors/kitchen/temp"}))
	require.True(t, x.Add("logs/#", &route{path: "logs/#"}))
	require.True(t, x.Add("a/+/c", &route{path: "a/+/c"}))
	require.True(t, x.Add("a/#", &route{path: "a/#"}))

	tt := []struct {
		topic string
		want  string
	}{
		{"sensors/hall/temp", "sensors/+/temp"},
		{"sensors/kitchen/temp", "sensors/kitchen/temp"},
		{"sensors/hall/humidity", ""},
		{"sensors/hall", ""},
		{"logs/boot", "logs/#"},
		{"logs/boot/stage/1", "logs/#"},
		{"logs", ""},
		{"a/b/c", "a/+/c"},
		{"a/b/d", "a/#"},
		{"a/b", "a/#"},
		{"", ""},
	}

	for _, tx := range tt {
		t.Run(tx.topic, func(t *testing.T) {
			r := x.Match(tx.topic)
			if tx.want == "" {
				require.Nil(t, r)
				return
			}

			require.NotNil(t, r)
			require.Equal(t, tx.want, r.path)
		})
	}
}
