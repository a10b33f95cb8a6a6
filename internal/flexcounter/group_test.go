package flexcounter

import (
	"context"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/counter-agent/internal/device"
	"github.com/counter-agent/internal/device/fake"
)

const (
	inOctets = "SAI_PORT_STAT_IF_IN_OCTETS"
	inErrors = "SAI_PORT_STAT_IF_IN_ERRORS"
	inUcast  = "SAI_PORT_STAT_IF_IN_UCAST_PKTS"
)

func bulkValues(vals ...uint64) fake.BulkGetStatsFunc {
	return func(_ context.Context, _ device.ObjectID, _ device.ObjectType, keys []device.ObjectID, ids []device.StatID, _ device.StatsMode) ([]error, [][]uint64, error) {
		statuses := make([]error, len(keys))
		values := make([][]uint64, len(keys))
		for i := range keys {
			values[i] = append([]uint64(nil), vals[:len(ids)]...)
		}
		return statuses, values, nil
	}
}

func portCaps(t *testing.T, modes device.StatsMode) fake.QueryStatsCapabilityFunc {
	return fake.Capabilities(modes,
		stat(t, device.ObjectTypePort, inOctets),
		stat(t, device.ObjectTypePort, inErrors),
		stat(t, device.ObjectTypePort, inUcast))
}

func TestAddRemoveCounterPerKind(t *testing.T) {
	for i := range kinds {
		k := &kinds[i]
		if k.attribute {
			continue
		}
		t.Run(k.field, func(t *testing.T) {
			h := newHarness(t)
			vid := h.object(k.objectType)
			name := device.StatName(k.objectType, 0)

			h.add("GROUP", vid, fv(k.field, name))
			g := h.m.Group("GROUP")
			assert.False(t, g.IsEmpty())

			h.poll("GROUP")
			row := h.row(vid)
			require.Contains(t, row, name)
			_, err := strconv.ParseUint(row[name], 10, 64)
			assert.NoError(t, err)

			h.m.RemoveCounter(h.ctx, "GROUP", vid)
			assert.True(t, g.IsEmpty())
			assert.False(t, h.hasRow(vid))
		})
	}
}

func TestAttributeFormatting(t *testing.T) {
	h := newHarness(t)
	port := h.object(device.ObjectTypePort)
	queue := h.object(device.ObjectTypeQueue)
	pg := h.object(device.ObjectTypeIngressPriorityGroup)
	sa := h.object(device.ObjectTypeMacsecSA)

	h.dev.OnGetAttributes(func(_ context.Context, ot device.ObjectType, _ device.ObjectID, ids []device.AttrID) ([]device.AttrValue, error) {
		out := make([]device.AttrValue, len(ids))
		for i, id := range ids {
			out[i] = device.AttrValue{ID: id}
			switch ot {
			case device.ObjectTypePort:
				out[i].Enum = device.PortOperStatusUp
			case device.ObjectTypeQueue:
				out[i].Bool = true
			case device.ObjectTypeIngressPriorityGroup:
				out[i].OID = 0x1000000000002
			case device.ObjectTypeMacsecSA:
				out[i].Uint = 3
			}
		}
		return out, nil
	})

	h.add("ATTR", port, fv(PortAttrIDList, "SAI_PORT_ATTR_OPER_STATUS"))
	h.add("ATTR", queue, fv(QueueAttrIDList, "SAI_QUEUE_ATTR_PAUSE_STATUS"))
	h.add("ATTR", pg, fv(PGAttrIDList, "SAI_INGRESS_PRIORITY_GROUP_ATTR_PORT"))
	h.add("ATTR", sa, fv(MacsecSAAttrIDList, "SAI_MACSEC_SA_ATTR_AN,SAI_MACSEC_SA_ATTR_CURRENT_XPN"))
	h.poll("ATTR")

	assert.Equal(t, map[string]string{"SAI_PORT_ATTR_OPER_STATUS": "SAI_PORT_OPER_STATUS_UP"}, h.row(port))
	assert.Equal(t, map[string]string{"SAI_QUEUE_ATTR_PAUSE_STATUS": "true"}, h.row(queue))
	assert.Equal(t, map[string]string{"SAI_INGRESS_PRIORITY_GROUP_ATTR_PORT": "oid:0x1000000000002"}, h.row(pg))
	assert.Equal(t, map[string]string{
		"SAI_MACSEC_SA_ATTR_AN":          "3",
		"SAI_MACSEC_SA_ATTR_CURRENT_XPN": "3",
	}, h.row(sa))

	// 属性不走统计能力查询
	assert.Equal(t, 0, h.dev.Calls(fake.OpQueryStatsCapability))
}

func TestQueryCounterCapability(t *testing.T) {
	h := newHarness(t)
	h.dev.OnQueryStatsCapability(fake.Capabilities(device.StatsModeRead, stat(t, device.ObjectTypePort, inOctets)))
	h.dev.OnGetStats(fake.Fixed(100))
	port := h.object(device.ObjectTypePort)

	h.add("PORT_STAT_COUNTER", port, fv(PortCounterIDList, inOctets+","+inUcast))
	h.poll("PORT_STAT_COUNTER")

	row := h.row(port)
	assert.Equal(t, "100", row[inOctets])
	assert.NotContains(t, row, inUcast)
}

func TestNoSupportedCounters(t *testing.T) {
	h := newHarness(t)
	h.dev.OnQueryStatsCapability(func(context.Context, device.ObjectID, device.ObjectType, int) ([]device.StatCapability, error) {
		return nil, device.ErrFailure
	})
	h.dev.OnGetStats(func(context.Context, device.ObjectType, device.ObjectID, []device.StatID) ([]uint64, error) {
		return nil, device.ErrFailure
	})
	port := h.object(device.ObjectTypePort)

	h.add("PORT_STAT_COUNTER", port, fv(PortCounterIDList, inOctets+","+inErrors))
	g := h.m.Group("PORT_STAT_COUNTER")
	assert.True(t, g.IsEmpty())

	h.poll("PORT_STAT_COUNTER")
	assert.False(t, h.hasRow(port))
	assert.True(t, g.IsEmpty())
}

func TestPluginsIndependentOfCounters(t *testing.T) {
	h := newHarness(t)
	port := h.object(device.ObjectTypePort)

	h.configure("PORT_STAT_COUNTER", fv(PortPluginField, "sha-rates,sha-drops"))
	g := h.m.Group("PORT_STAT_COUNTER")
	assert.True(t, g.IsEmpty(), "plugins alone do not make a group non-empty")
	assert.Equal(t, map[string]int{PortPluginField: 2}, g.Status().Plugins)

	h.add("PORT_STAT_COUNTER", port, fv(PortCounterIDList, inOctets))
	assert.False(t, g.IsEmpty())

	h.m.RemoveGroupPlugins("PORT_STAT_COUNTER")
	assert.False(t, g.IsEmpty())
	assert.Empty(t, g.Status().Plugins)

	h.m.RemoveCounter(h.ctx, "PORT_STAT_COUNTER", port)
	assert.True(t, g.IsEmpty())
}

func TestPluginsRunAfterWrites(t *testing.T) {
	h := newHarness(t)
	p1 := h.object(device.ObjectTypePort)
	p2 := h.object(device.ObjectTypePort)
	q := h.object(device.ObjectTypeQueue)

	h.configure("MIXED", fv(PollIntervalField, "1000"), fv(PortPluginField, "sha-port"), fv(QueuePluginField, "sha-queue"), fv(PGPluginField, "sha-pg"))
	h.add("MIXED", p1, fv(PortCounterIDList, inOctets))
	h.add("MIXED", p2, fv(PortAttrIDList, "SAI_PORT_ATTR_OPER_STATUS"))
	h.add("MIXED", q, fv(QueueCounterIDList, "SAI_QUEUE_STAT_PACKETS"))
	h.poll("MIXED")

	calls := h.plugins.recorded()
	require.Len(t, calls, 2, "no plugin call for a type without objects")
	bySHA := map[string]recordedCall{}
	for _, c := range calls {
		bySHA[c.sha] = c
	}
	assert.Equal(t, []string{device.FormatOID(p1), device.FormatOID(p2)}, bySHA["sha-port"].keys)
	assert.Equal(t, []string{"COUNTERS", "1000"}, bySHA["sha-port"].args)
	assert.Equal(t, []string{device.FormatOID(q)}, bySHA["sha-queue"].keys)
}

func TestBulkCounter(t *testing.T) {
	h := newHarness(t)
	h.dev.OnQueryStatsCapability(portCaps(t, device.StatsModeRead|device.StatsModeBulkRead))
	h.dev.OnBulkGetStats(bulkValues(100, 200))
	a := h.object(device.ObjectTypePort)
	b := h.object(device.ObjectTypePort)

	h.configure("PORT_STAT_COUNTER", enabled("1000")...)
	h.add("PORT_STAT_COUNTER", a, fv(PortCounterIDList, inOctets+","+inErrors))
	h.add("PORT_STAT_COUNTER", b, fv(PortCounterIDList, inOctets+","+inErrors))
	h.dev.ResetCalls()
	h.poll("PORT_STAT_COUNTER")

	want := map[string]string{inOctets: "100", inErrors: "200"}
	assert.Equal(t, want, h.row(a))
	assert.Equal(t, want, h.row(b))
	assert.Equal(t, 1, h.dev.Calls(fake.OpBulkGetStats))
	assert.Equal(t, 0, h.dev.Calls(fake.OpGetStats))
}

func TestBufferPoolNeverBulkOrCleared(t *testing.T) {
	h := newHarness(t)
	h.dev.OnBulkGetStats(bulkValues(1, 2))
	a := h.object(device.ObjectTypeBufferPool)
	b := h.object(device.ObjectTypeBufferPool)
	list := "SAI_BUFFER_POOL_STAT_CURR_OCCUPANCY_BYTES,SAI_BUFFER_POOL_STAT_WATERMARK_BYTES"

	h.configure("BUFFER_POOL_WATERMARK_STAT_COUNTER", fv(StatsModeField, StatsModeReadAndClear))
	h.add("BUFFER_POOL_WATERMARK_STAT_COUNTER", a, fv(BufferPoolCounterIDList, list))
	h.add("BUFFER_POOL_WATERMARK_STAT_COUNTER", b, fv(BufferPoolCounterIDList, list))
	h.dev.ResetCalls()
	h.poll("BUFFER_POOL_WATERMARK_STAT_COUNTER")

	assert.Equal(t, 0, h.dev.Calls(fake.OpBulkGetStats))
	assert.Equal(t, 2, h.dev.Calls(fake.OpGetStats))
	assert.Equal(t, 0, h.dev.Calls(fake.OpClearStats))
	assert.Equal(t, 0, h.dev.Calls(fake.OpGetStatsExt))
	assert.Len(t, h.row(a), 2)
	assert.Len(t, h.row(b), 2)
}

func TestSingleMemberUsesPerObjectRead(t *testing.T) {
	h := newHarness(t)
	h.dev.OnQueryStatsCapability(portCaps(t, device.StatsModeRead|device.StatsModeBulkRead))
	h.dev.OnGetStats(fake.Fixed(7))
	a := h.object(device.ObjectTypePort)
	b := h.object(device.ObjectTypePort)

	h.add("PORT_STAT_COUNTER", a, fv(PortCounterIDList, inOctets))
	h.add("PORT_STAT_COUNTER", b, fv(PortCounterIDList, inErrors))
	h.poll("PORT_STAT_COUNTER")

	assert.Equal(t, 0, h.dev.Calls(fake.OpBulkGetStats))
	assert.Equal(t, 2, h.dev.Calls(fake.OpGetStats))
	assert.Equal(t, map[string]string{inOctets: "7"}, h.row(a))
	assert.Equal(t, map[string]string{inErrors: "7"}, h.row(b))
}

func TestBulkDemotedOnNotSupported(t *testing.T) {
	h := newHarness(t)
	h.dev.OnQueryStatsCapability(portCaps(t, device.StatsModeRead))
	h.dev.OnBulkGetStats(func(context.Context, device.ObjectID, device.ObjectType, []device.ObjectID, []device.StatID, device.StatsMode) ([]error, [][]uint64, error) {
		return nil, nil, device.ErrNotSupported
	})
	h.dev.OnGetStats(fake.Fixed(5))
	a := h.object(device.ObjectTypePort)
	b := h.object(device.ObjectTypePort)
	h.add("PORT_STAT_COUNTER", a, fv(PortCounterIDList, inOctets))
	h.add("PORT_STAT_COUNTER", b, fv(PortCounterIDList, inOctets))

	h.poll("PORT_STAT_COUNTER")
	assert.Equal(t, 1, h.dev.Calls(fake.OpBulkGetStats))
	assert.Equal(t, 2, h.dev.Calls(fake.OpGetStats), "demoted bucket is retried per object in the same tick")
	assert.Equal(t, "5", h.row(a)[inOctets])
	assert.Equal(t, "5", h.row(b)[inOctets])
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.BulkDemotions.WithLabelValues("PORT")))

	h.poll("PORT_STAT_COUNTER")
	assert.Equal(t, 1, h.dev.Calls(fake.OpBulkGetStats), "demotion is sticky")
	assert.Equal(t, 4, h.dev.Calls(fake.OpGetStats))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.BulkDemotions.WithLabelValues("PORT")))
}

func TestBulkWholesaleFailureSkipsBucket(t *testing.T) {
	h := newHarness(t)
	h.dev.OnQueryStatsCapability(portCaps(t, device.StatsModeRead))
	a := h.object(device.ObjectTypePort)
	b := h.object(device.ObjectTypePort)
	h.add("PORT_STAT_COUNTER", a, fv(PortCounterIDList, inOctets))
	h.add("PORT_STAT_COUNTER", b, fv(PortCounterIDList, inOctets))

	h.dev.OnBulkGetStats(bulkValues(42))
	h.poll("PORT_STAT_COUNTER")
	assert.Equal(t, "42", h.row(a)[inOctets])

	h.dev.OnBulkGetStats(func(context.Context, device.ObjectID, device.ObjectType, []device.ObjectID, []device.StatID, device.StatsMode) ([]error, [][]uint64, error) {
		return nil, nil, device.ErrFailure
	})
	h.poll("PORT_STAT_COUNTER")
	assert.Equal(t, "42", h.row(a)[inOctets], "failed tick leaves the last value")
	assert.Equal(t, "42", h.row(b)[inOctets])
	assert.Equal(t, 0, h.dev.Calls(fake.OpGetStats))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.DeviceErrors.WithLabelValues("PORT_STAT_COUNTER", "bulk_get_stats")))

	h.dev.OnBulkGetStats(bulkValues(43))
	h.poll("PORT_STAT_COUNTER")
	assert.Equal(t, "43", h.row(b)[inOctets], "bulk is retried next tick")
}

func TestBulkPerMemberStatus(t *testing.T) {
	h := newHarness(t)
	h.dev.OnQueryStatsCapability(portCaps(t, device.StatsModeRead))
	h.dev.OnGetStats(fake.Fixed(9))
	a := h.object(device.ObjectTypePort)
	b := h.object(device.ObjectTypePort)
	c := h.object(device.ObjectTypePort)
	for _, vid := range []device.ObjectID{a, b, c} {
		h.add("PORT_STAT_COUNTER", vid, fv(PortCounterIDList, inOctets))
	}
	h.dev.OnBulkGetStats(func(_ context.Context, _ device.ObjectID, _ device.ObjectType, keys []device.ObjectID, _ []device.StatID, _ device.StatsMode) ([]error, [][]uint64, error) {
		require.Len(t, keys, 3)
		return []error{nil, device.ErrNotSupported, device.ErrFailure},
			[][]uint64{{1}, nil, nil}, nil
	})

	h.poll("PORT_STAT_COUNTER")
	assert.Equal(t, "1", h.row(a)[inOctets])
	assert.Equal(t, "9", h.row(b)[inOctets], "not-supported member is read on its own")
	assert.False(t, h.hasRow(c), "failed member is skipped")
	assert.Equal(t, 1, h.dev.Calls(fake.OpGetStats))
	assert.True(t, h.m.Capabilities().IsBulkSupported(0x21000000000000, device.ObjectTypePort, []int32{0}),
		"per-member not-supported does not demote the set")
}

func TestReadAndClearBulkFallsBackToExplicitClear(t *testing.T) {
	h := newHarness(t)
	h.dev.OnQueryStatsCapability(portCaps(t, device.StatsModeRead|device.StatsModeBulkRead))
	var modes []device.StatsMode
	h.dev.OnBulkGetStats(func(ctx context.Context, sw device.ObjectID, ot device.ObjectType, keys []device.ObjectID, ids []device.StatID, mode device.StatsMode) ([]error, [][]uint64, error) {
		modes = append(modes, mode)
		if mode == device.StatsModeBulkReadAndClear {
			return nil, nil, device.ErrNotSupported
		}
		return bulkValues(11)(ctx, sw, ot, keys, ids, mode)
	})
	a := h.object(device.ObjectTypePort)
	b := h.object(device.ObjectTypePort)
	h.configure("PORT_STAT_COUNTER", fv(StatsModeField, StatsModeReadAndClear))
	h.add("PORT_STAT_COUNTER", a, fv(PortCounterIDList, inOctets))
	h.add("PORT_STAT_COUNTER", b, fv(PortCounterIDList, inOctets))

	h.poll("PORT_STAT_COUNTER")
	assert.Equal(t, []device.StatsMode{device.StatsModeBulkReadAndClear, device.StatsModeBulkRead}, modes)
	assert.Equal(t, 2, h.dev.Calls(fake.OpClearStats))
	assert.Equal(t, "11", h.row(a)[inOctets])
	assert.Equal(t, "11", h.row(b)[inOctets])
	assert.Equal(t, float64(0), testutil.ToFloat64(h.metrics.BulkDemotions.WithLabelValues("PORT")))

	h.poll("PORT_STAT_COUNTER")
	assert.Equal(t, device.StatsModeBulkRead, modes[len(modes)-1])
	assert.Len(t, modes, 3, "bulk read-and-clear verdict is sticky")
	assert.Equal(t, 4, h.dev.Calls(fake.OpClearStats))
}

func TestReadAndClearBulkNative(t *testing.T) {
	h := newHarness(t)
	h.dev.OnQueryStatsCapability(portCaps(t, device.StatsModeRead))
	a := h.object(device.ObjectTypePort)
	b := h.object(device.ObjectTypePort)
	h.configure("PORT_STAT_COUNTER", fv(StatsModeField, StatsModeReadAndClear))
	h.add("PORT_STAT_COUNTER", a, fv(PortCounterIDList, inOctets))
	h.add("PORT_STAT_COUNTER", b, fv(PortCounterIDList, inOctets))

	// 模拟设备在批量读清时清零，数值不会增长
	h.poll("PORT_STAT_COUNTER")
	h.poll("PORT_STAT_COUNTER")
	assert.Equal(t, "1", h.row(a)[inOctets])
	assert.Equal(t, "1", h.row(b)[inOctets])
	assert.Equal(t, 0, h.dev.Calls(fake.OpClearStats))
}

func TestReadAndClearPerObject(t *testing.T) {
	t.Run("capability advertises read-and-clear", func(t *testing.T) {
		h := newHarness(t)
		h.dev.OnQueryStatsCapability(portCaps(t, device.StatsModeRead|device.StatsModeReadAndClear))
		port := h.object(device.ObjectTypePort)
		h.configure("PORT_STAT_COUNTER", fv(StatsModeField, StatsModeReadAndClear))
		h.add("PORT_STAT_COUNTER", port, fv(PortCounterIDList, inOctets))

		h.poll("PORT_STAT_COUNTER")
		assert.Equal(t, 1, h.dev.Calls(fake.OpGetStatsExt))
		assert.Equal(t, 0, h.dev.Calls(fake.OpGetStats))
		assert.Equal(t, 0, h.dev.Calls(fake.OpClearStats))
	})

	t.Run("capability unknown", func(t *testing.T) {
		h := newHarness(t)
		queue := h.object(device.ObjectTypeQueue)
		h.configure("QUEUE_STAT_COUNTER", fv(StatsModeField, StatsModeReadAndClear))
		h.add("QUEUE_STAT_COUNTER", queue, fv(QueueCounterIDList, "SAI_QUEUE_STAT_PACKETS,SAI_QUEUE_STAT_BYTES"))
		h.dev.ResetCalls()

		h.poll("QUEUE_STAT_COUNTER")
		assert.Equal(t, 0, h.dev.Calls(fake.OpGetStatsExt))
		assert.Equal(t, 1, h.dev.Calls(fake.OpGetStats))
		assert.Equal(t, 1, h.dev.Calls(fake.OpClearStats))
		assert.Len(t, h.row(queue), 2)
	})

	t.Run("read mode never clears", func(t *testing.T) {
		h := newHarness(t)
		queue := h.object(device.ObjectTypeQueue)
		h.add("QUEUE_STAT_COUNTER", queue, fv(QueueCounterIDList, "SAI_QUEUE_STAT_PACKETS"))
		h.poll("QUEUE_STAT_COUNTER")
		assert.Equal(t, 0, h.dev.Calls(fake.OpClearStats))
	})
}

func TestClearFailureStillPublishes(t *testing.T) {
	h := newHarness(t)
	h.dev.OnGetStats(fake.Fixed(3))
	h.dev.OnClearStats(func(context.Context, device.ObjectType, device.ObjectID, []device.StatID) error {
		return device.ErrFailure
	})
	queue := h.object(device.ObjectTypeQueue)
	h.configure("QUEUE_STAT_COUNTER", fv(StatsModeField, StatsModeReadAndClear))
	h.add("QUEUE_STAT_COUNTER", queue, fv(QueueCounterIDList, "SAI_QUEUE_STAT_PACKETS"))

	h.poll("QUEUE_STAT_COUNTER")
	assert.Equal(t, "3", h.row(queue)["SAI_QUEUE_STAT_PACKETS"])
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.ClearFailures.WithLabelValues("QUEUE_STAT_COUNTER")))
}

func TestCounterIDChange(t *testing.T) {
	h := newHarness(t)
	h.dev.OnQueryStatsCapability(portCaps(t, device.StatsModeRead))
	h.dev.OnBulkGetStats(bulkValues(100, 200))
	h.dev.OnGetStats(fake.Fixed(50))
	a := h.object(device.ObjectTypePort)
	b := h.object(device.ObjectTypePort)

	h.add("PORT_STAT_COUNTER", a, fv(PortCounterIDList, inOctets+","+inErrors))
	h.add("PORT_STAT_COUNTER", b, fv(PortCounterIDList, inOctets+","+inErrors))
	h.poll("PORT_STAT_COUNTER")
	assert.Equal(t, map[string]string{inOctets: "100", inErrors: "200"}, h.row(a))
	assert.Equal(t, 1, h.dev.Calls(fake.OpBulkGetStats))

	h.add("PORT_STAT_COUNTER", a, fv(PortCounterIDList, inUcast+","+inOctets))
	h.poll("PORT_STAT_COUNTER")

	assert.Equal(t, map[string]string{inUcast: "50", inOctets: "100"}, h.row(a), "stale columns are gone")
	assert.Equal(t, map[string]string{inOctets: "50", inErrors: "100"}, h.row(b))
	assert.Equal(t, 1, h.dev.Calls(fake.OpBulkGetStats), "both buckets have one member now")
	assert.Equal(t, 2, h.dev.Calls(fake.OpGetStats))

	// 重复注册相同列表沿用原上下文
	h.add("PORT_STAT_COUNTER", a, fv(PortCounterIDList, inUcast+","+inOctets))
	h.poll("PORT_STAT_COUNTER")
	assert.Equal(t, map[string]string{inUcast: "50", inOctets: "100"}, h.row(a))

	// 与 b 的集合一致后重新进入批量读取
	h.add("PORT_STAT_COUNTER", a, fv(PortCounterIDList, inOctets+","+inErrors))
	h.poll("PORT_STAT_COUNTER")
	assert.Equal(t, map[string]string{inOctets: "100", inErrors: "200"}, h.row(a))
	assert.Equal(t, 2, h.dev.Calls(fake.OpBulkGetStats))
}

func TestLastKnownGoodKeptOnFailure(t *testing.T) {
	h := newHarness(t)
	h.dev.OnQueryStatsCapability(portCaps(t, device.StatsModeRead))
	h.dev.OnGetStats(fake.Fixed(10))
	port := h.object(device.ObjectTypePort)
	h.add("PORT_STAT_COUNTER", port, fv(PortCounterIDList, inOctets+","+inErrors))

	h.poll("PORT_STAT_COUNTER")
	g := h.m.Group("PORT_STAT_COUNTER")
	assert.Equal(t, []string{"10", "20"}, g.LastGood(PortCounterIDList, port))

	h.dev.OnGetStats(func(context.Context, device.ObjectType, device.ObjectID, []device.StatID) ([]uint64, error) {
		return nil, device.ErrFailure
	})
	h.poll("PORT_STAT_COUNTER")
	assert.Equal(t, []string{"10", "20"}, g.LastGood(PortCounterIDList, port))
	assert.Equal(t, map[string]string{inOctets: "10", inErrors: "20"}, h.row(port))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.DeviceErrors.WithLabelValues("PORT_STAT_COUNTER", "get_stats")))

	h.dev.OnGetStats(func(context.Context, device.ObjectType, device.ObjectID, []device.StatID) ([]uint64, error) {
		return []uint64{1}, nil
	})
	h.poll("PORT_STAT_COUNTER")
	assert.Equal(t, []string{"10", "20"}, g.LastGood(PortCounterIDList, port), "short result is not published")
}

func TestEmptyListRemovesKind(t *testing.T) {
	h := newHarness(t)
	port := h.object(device.ObjectTypePort)
	h.add("PORT_STAT_COUNTER", port,
		fv(PortCounterIDList, inOctets),
		fv(PortAttrIDList, "SAI_PORT_ATTR_OPER_STATUS"))
	h.poll("PORT_STAT_COUNTER")
	assert.Len(t, h.row(port), 2)

	h.add("PORT_STAT_COUNTER", port, fv(PortAttrIDList, ""))
	assert.NotContains(t, h.row(port), "SAI_PORT_ATTR_OPER_STATUS")
	assert.Contains(t, h.row(port), inOctets)
	assert.Equal(t, map[string]int{PortCounterIDList: 1}, h.m.Group("PORT_STAT_COUNTER").Status().Kinds)
}

func TestRemoveLeavesOtherGroupsFields(t *testing.T) {
	h := newHarness(t)
	port := h.object(device.ObjectTypePort)
	h.add("PORT_STAT_COUNTER", port, fv(PortCounterIDList, inOctets))
	h.add("PORT_STATUS", port, fv(PortAttrIDList, "SAI_PORT_ATTR_OPER_STATUS"))
	h.poll("PORT_STAT_COUNTER")
	h.poll("PORT_STATUS")
	assert.Len(t, h.row(port), 2)

	h.m.RemoveCounter(h.ctx, "PORT_STAT_COUNTER", port)
	assert.Equal(t, map[string]string{"SAI_PORT_ATTR_OPER_STATUS": "SAI_PORT_OPER_STATUS_UNKNOWN"}, h.row(port))

	h.m.RemoveCounter(h.ctx, "PORT_STATUS", port)
	assert.False(t, h.hasRow(port))
}

func TestRegistrationErrors(t *testing.T) {
	h := newHarness(t)
	port := h.object(device.ObjectTypePort)
	queue := h.object(device.ObjectTypeQueue)

	cases := []struct {
		name string
		vid  device.ObjectID
		fvs  []FieldValue
	}{
		{"unknown field", port, []FieldValue{fv("PORT_FOO_LIST", inOctets)}},
		{"unknown stat", port, []FieldValue{fv(PortCounterIDList, "SAI_PORT_STAT_NOPE")}},
		{"type mismatch", queue, []FieldValue{fv(PortCounterIDList, inOctets)}},
		{"unknown attribute", port, []FieldValue{fv(PortAttrIDList, "SAI_PORT_ATTR_SPEED")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, h.m.AddCounter(h.ctx, "G", tc.vid, 0, tc.fvs))
		})
	}
	assert.True(t, h.m.Group("G").IsEmpty())

	unmapped := h.alloc.Next(device.ObjectTypePort)
	assert.Error(t, h.m.AddCounter(h.ctx, "G", unmapped, 0, []FieldValue{fv(PortCounterIDList, inOctets)}))
	assert.NoError(t, h.m.AddCounter(h.ctx, "G", unmapped, 0x99, []FieldValue{fv(PortCounterIDList, inOctets)}), "explicit real id needs no lookup")

	for _, fvs := range [][]FieldValue{
		{fv(PollIntervalField, "soon")},
		{fv(StatusField, "on")},
		{fv(StatsModeField, "STATS_MODE_SOMETIMES")},
		{fv(PortCounterIDList, inOctets)},
	} {
		assert.Error(t, h.m.AddGroupPlugin("G", fvs))
	}
	assert.Equal(t, StateUnconfigured.String(), h.m.Group("G").Status().State)
}
