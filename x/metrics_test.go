/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package x

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.opencensus.io/stats/view"
)

func countFor(t *testing.T, method, status string) int64 {
	rows, err := view.RetrieveData(NumIndexOps.Name())
	require.NoError(t, err)
	for _, r := range rows {
		var m, s string
		for _, tg := range r.Tags {
			switch tg.Key {
			case KeyMethod:
				m = tg.Value
			case KeyStatus:
				s = tg.Value
			}
		}
		if m == method && s == status {
			return r.Data.(*view.CountData).Value
		}
	}
	return 0
}

func TestRecordOp(t *testing.T) {
	ctx := context.Background()
	okBefore := countFor(t, "test.record", TagValueStatusOK)
	errBefore := countFor(t, "test.record", TagValueStatusError)

	RecordOp(ctx, "test.record", time.Now(), nil)
	RecordOp(ctx, "test.record", time.Now(), nil)
	RecordOp(ctx, "test.record", time.Now(), errors.New("boom"))

	require.Equal(t, okBefore+2, countFor(t, "test.record", TagValueStatusOK))
	require.Equal(t, errBefore+1, countFor(t, "test.record", TagValueStatusError))
}

func TestMetricsHandler(t *testing.T) {
	h, err := MetricsHandler("dggrs_test")
	require.NoError(t, err)
	RecordOp(context.Background(), "test.handler", time.Now(), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "dggrs_test_index_ops_total")
}
