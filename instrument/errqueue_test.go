package instrument_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/mock/gomock"
	"i4.energy/across/scpictl/instrument"
	"i4.energy/across/scpictl/scpi"
)

func TestErrorQueue(t *testing.T) {
	errorQuery := scpi.MustCommand(scpi.CmdSystemErrorQ)

	t.Run("Stops at No error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		q := instrument.NewMockQuerier(ctrl)
		gomock.InOrder(
			q.EXPECT().QueryRaw(gomock.Any(), errorQuery).Return([]byte("-222,\"Data out of range\"\n"), nil),
			q.EXPECT().QueryRaw(gomock.Any(), errorQuery).Return([]byte("-410,\"Query INTERRUPTED\"\n"), nil),
			q.EXPECT().QueryRaw(gomock.Any(), errorQuery).Return([]byte("0,\"No error\"\n"), nil),
		)

		entries, err := instrument.DrainErrors(context.Background(), q, 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(entries) != 2 || entries[0].Code != -222 || entries[1].Code != -410 {
			t.Errorf("unexpected entries: %v", entries)
		}
	})

	t.Run("Overflow after the limit", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		q := instrument.NewMockQuerier(ctrl)
		q.EXPECT().QueryRaw(gomock.Any(), errorQuery).Return([]byte("-310,\"System error\"\n"), nil).Times(3)

		entries, err := instrument.DrainErrors(context.Background(), q, 3)
		if !errors.Is(err, instrument.ErrErrorQueueOverflow) {
			t.Errorf("expected ErrErrorQueueOverflow, got: %v", err)
		}
		if len(entries) != 3 {
			t.Errorf("expected 3 entries, got %d", len(entries))
		}
	})

	t.Run("Malformed entry", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		q := instrument.NewMockQuerier(ctrl)
		q.EXPECT().QueryRaw(gomock.Any(), errorQuery).Return([]byte("garbage\n"), nil)

		_, err := instrument.DrainErrors(context.Background(), q, 10)
		var de *scpi.DecodeError
		if !errors.As(err, &de) {
			t.Errorf("expected *DecodeError, got: %v", err)
		}
	})

	t.Run("Query failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		q := instrument.NewMockQuerier(ctrl)
		q.EXPECT().QueryRaw(gomock.Any(), errorQuery).Return(nil, instrument.ErrOperationTimeout)

		_, err := instrument.DrainErrors(context.Background(), q, 10)
		if !errors.Is(err, instrument.ErrOperationTimeout) {
			t.Errorf("expected ErrOperationTimeout, got: %v", err)
		}
	})

	t.Run("Lazy iteration stops early", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		q := instrument.NewMockQuerier(ctrl)
		q.EXPECT().QueryRaw(gomock.Any(), errorQuery).Return([]byte("-100,\"Command error\"\n"), nil).Times(1)

		for entry, err := range instrument.Errors(context.Background(), q, 10) {
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if entry.Code != -100 {
				t.Errorf("unexpected entry: %v", entry)
			}
			break
		}
	})

	t.Run("Custom query", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		next := scpi.MustCommand(scpi.CmdSystemErrorNextQ)
		q := instrument.NewMockQuerier(ctrl)
		q.EXPECT().QueryRaw(gomock.Any(), next).Return([]byte("+0,\"No error\"\n"), nil)

		entries, err := instrument.ErrorQueue{Querier: q, Query: next}.Drain(context.Background())
		if err != nil || len(entries) != 0 {
			t.Errorf("expected an empty queue, got %v (%v)", entries, err)
		}
	})
}
