package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-facecast/pkg/face"
	"github.com/teslashibe/go-facecast/pkg/record"
)

func TestReceiver_DecodesSentRecords(t *testing.T) {
	r, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan []record.Record, 1)
	go r.Serve(ctx, func(from net.Addr, records []record.Record, err error) {
		if err == nil {
			got <- records
		}
	})

	bs := make(face.BlendShapes)
	for _, b := range face.AllBlendShapes() {
		bs[b] = 0.25
	}
	f := face.TrackedFace{ID: uuid.New(), Pose: face.IdentityPose(), BlendShapes: bs}
	payload, err := record.Encode(f, face.NewOffset(0, 0, 0))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	s := NewSender(DefaultConfig())
	if err := s.Send(context.Background(), r.Endpoint(), payload); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case records := <-got:
		if len(records) != 1 || records[0].ID != f.ID {
			t.Errorf("records = %+v", records)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for datagram")
	}
}

func TestReceiver_ReportsMalformed(t *testing.T) {
	r, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs := make(chan error, 1)
	go r.Serve(ctx, func(from net.Addr, records []record.Record, err error) {
		errs <- err
	})

	s := NewSender(DefaultConfig())
	if err := s.Send(context.Background(), r.Endpoint(), []byte("not a record")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case err := <-errs:
		if !errors.Is(err, record.ErrTrailingBytes) {
			t.Errorf("handler error = %v, want ErrTrailingBytes", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for datagram")
	}
}

func TestReceiver_StopsOnCancel(t *testing.T) {
	r, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Serve(ctx, func(net.Addr, []record.Record, error) {})
	}()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
