package server

import (
	"os"
	"testing"
	"time"

	"github.com/ardnew/mpa/endpoint"
	"github.com/ardnew/mpa/pkg"
	"github.com/ardnew/mpa/record"
)

// shortBase returns a temp directory short enough that
// endpoint.MaxLocationLen (64 bytes) isn't exceeded once a channel name and
// trailing slash are appended.
func shortBase(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "mpa")
	if err != nil {
		t.Fatalf("MkdirTemp() error = %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	endpoint.SetDefaultBase(dir)
	return dir
}

// announce simulates a client's rendezvous step: writing its handle,
// null-terminated, to the channel's already-open request FIFO.
func announce(t *testing.T, dir, handle string) {
	t.Helper()
	f, err := os.OpenFile(dir+endpoint.RequestFile, os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open request fifo: %v", err)
	}
	defer f.Close()
	if _, err := f.Write(append([]byte(handle), 0)); err != nil {
		t.Fatalf("write handle: %v", err)
	}
}

// openClientData waits for the server to create handle's data FIFO, then
// opens it for reading.
func openClientData(t *testing.T, dir, handle string) *os.File {
	t.Helper()
	path := dir + handle
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			break
		}
		time.Sleep(time.Millisecond)
	}
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		t.Fatalf("open client data fifo %q: %v", path, err)
	}
	return f
}

func TestCreateAndClose(t *testing.T) {
	dir := shortBase(t)

	ch, err := Create(0, "cam0", "camera")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !ch.IsRunning() {
		t.Error("IsRunning() = false after Create")
	}
	if _, err := os.Stat(dir + "/cam0/" + endpoint.InfoFile); err != nil {
		t.Errorf("info descriptor not written: %v", err)
	}
	if _, err := os.Stat(dir + "/cam0/" + endpoint.RequestFile); err != nil {
		t.Errorf("request fifo not created: %v", err)
	}

	if err := ch.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if ch.IsRunning() {
		t.Error("IsRunning() = true after Close")
	}
	if _, err := os.Stat(dir + "/cam0"); !os.IsNotExist(err) {
		t.Errorf("Close() left the endpoint directory behind, stat err = %v", err)
	}
}

func TestCreateRejectsOutOfBoundsID(t *testing.T) {
	shortBase(t)
	if _, err := Create(MaxChannels, "x", "raw"); !errorsIsChannelOOB(err) {
		t.Errorf("Create(MaxChannels, ...) error = %v, want ErrChannelOOB", err)
	}
	if _, err := Create(-1, "x", "raw"); !errorsIsChannelOOB(err) {
		t.Errorf("Create(-1, ...) error = %v, want ErrChannelOOB", err)
	}
}

func errorsIsChannelOOB(err error) bool {
	return err != nil && pkg.CodeOf(err) == pkg.CodeChannelOOB
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	shortBase(t)

	ch, err := Create(1, "dupA", "raw")
	if err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	defer ch.Close()

	if _, err := Create(1, "dupB", "raw"); err == nil {
		t.Error("second Create() with same id succeeded, want error")
	}
}

func TestClientRendezvousAndFanout(t *testing.T) {
	dir := shortBase(t)

	ch, err := Create(2, "imu0", "raw")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer ch.Close()

	announce(t, dir+"/imu0/", "clientA")
	rd := openClientData(t, dir+"/imu0/", "clientA")
	defer rd.Close()

	payload := []byte("hello-imu")
	ch.WriteRaw(payload)

	buf := make([]byte, len(payload))
	if _, err := rd.Read(buf); err != nil {
		t.Fatalf("read fanout data: %v", err)
	}
	if string(buf) != string(payload) {
		t.Errorf("read %q, want %q", buf, payload)
	}
}

func TestReconnectSameHandleReusesSlot(t *testing.T) {
	dir := shortBase(t)

	ch, err := Create(3, "reconn", "raw")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer ch.Close()

	announce(t, dir+"/reconn/", "h1")
	waitForSlot(t, ch, "h1")

	announce(t, dir+"/reconn/", "h1")
	waitForSlotCount(t, ch, 1)
}

func waitForSlot(t *testing.T, ch *Channel, handle string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		for _, s := range ch.clients {
			if s != nil && s.handle == handle {
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("slot for handle %q never appeared", handle)
}

func waitForSlotCount(t *testing.T, ch *Channel, want int) {
	t.Helper()
	time.Sleep(20 * time.Millisecond) // let a second rendezvous settle
	n := 0
	for _, s := range ch.clients {
		if s != nil {
			n++
		}
	}
	if n != want {
		t.Errorf("slot count = %d, want %d", n, want)
	}
}

func TestBackPressureIsolatesSlowClient(t *testing.T) {
	dir := shortBase(t)

	ch, err := Create(4, "bp", "raw", WithSizeBytes(4096))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer ch.Close()

	announce(t, dir+"/bp/", "slow")
	slowRd := openClientData(t, dir+"/bp/", "slow")
	defer slowRd.Close()

	announce(t, dir+"/bp/", "fast")
	fastRd := openClientData(t, dir+"/bp/", "fast")
	defer fastRd.Close()

	// The fast client drains continuously from the start, so it should
	// never trip the back-pressure check; the slow client never reads,
	// so its buffer fills and subsequent writes to it are dropped.
	const wantBytes = 32 * 1024
	received := make(chan int, 1)
	go func() {
		buf := make([]byte, 4096)
		total := 0
		for total < wantBytes {
			n, err := fastRd.Read(buf)
			if err != nil {
				break
			}
			total += n
		}
		received <- total
	}()

	filler := make([]byte, 1024)
	for i := 0; i < wantBytes/len(filler); i++ {
		ch.WriteRaw(filler)
	}

	select {
	case total := <-received:
		if total < wantBytes {
			t.Errorf("fast client received %d bytes, want at least %d", total, wantBytes)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fast client starved by slow client's back-pressure")
	}
}

func TestEncodedVideoHeaderReplayToLateJoiner(t *testing.T) {
	dir := shortBase(t)

	ch, err := Create(5, "vid0", "camera")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer ch.Close()

	header := &record.CameraMetadata{Format: record.CameraFormatH264, SizeBytes: 5}
	headerPayload := []byte{0, 0, 0, 0, 0x67}
	ch.WriteCamera(header, headerPayload)

	announce(t, dir+"/vid0/", "late")
	rd := openClientData(t, dir+"/vid0/", "late")
	defer rd.Close()

	buf := make([]byte, record.CameraMetadataSize+len(headerPayload))
	n, err := rd.Read(buf)
	if err != nil {
		t.Fatalf("read replayed header: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("read %d bytes, want %d", n, len(buf))
	}
}

func TestEncodedVideoDropsPBeforeFirstHeader(t *testing.T) {
	dir := shortBase(t)

	ch, err := Create(6, "vid1", "camera")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer ch.Close()

	announce(t, dir+"/vid1/", "viewer")
	rd := openClientData(t, dir+"/vid1/", "viewer")
	defer rd.Close()

	p := &record.CameraMetadata{Format: record.CameraFormatH264, SizeBytes: 5}
	ch.WriteCamera(p, []byte{0, 0, 0, 0, 0x41})

	header := &record.CameraMetadata{Format: record.CameraFormatH264, SizeBytes: 5}
	ch.WriteCamera(header, []byte{0, 0, 0, 0, 0x67})

	buf := make([]byte, record.CameraMetadataSize+5)
	rd.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	n, err := rd.Read(buf)
	if err != nil {
		t.Fatalf("client never received the header frame (the leading P frame should have been dropped): %v", err)
	}
	if n != len(buf) {
		t.Fatalf("read %d bytes, want %d", n, len(buf))
	}
	var got record.CameraMetadata
	got.ParseFrom(buf[:record.CameraMetadataSize])
	if got.Format != record.CameraFormatH264 {
		t.Fatalf("unexpected first frame format %v", got.Format)
	}
	if marker := buf[record.CameraMetadataSize+4]; marker != 0x67 {
		t.Fatalf("first frame marker = %#x, want header marker 0x67 (the leading P frame should have been dropped)", marker)
	}
}

func TestWriteCameraStereoConcatenatesLeftAndRight(t *testing.T) {
	dir := shortBase(t)

	ch, err := Create(7, "stereo0", "camera")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer ch.Close()

	announce(t, dir+"/stereo0/", "viewer")
	rd := openClientData(t, dir+"/stereo0/", "viewer")
	defer rd.Close()

	left := []byte{1, 2, 3, 4}
	right := []byte{5, 6, 7, 8}
	meta := &record.CameraMetadata{Width: 2, Height: 2}
	ch.WriteCameraStereo(meta, left, right)

	buf := make([]byte, record.CameraMetadataSize+len(left)+len(right))
	rd.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	n, err := rd.Read(buf)
	if err != nil {
		t.Fatalf("read stereo frame: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("read %d bytes, want %d", n, len(buf))
	}

	var got record.CameraMetadata
	got.ParseFrom(buf[:record.CameraMetadataSize])
	if !got.IsStereo() {
		t.Fatalf("parsed metadata Format = %v, want CameraFormatStereoGray", got.Format)
	}
	if int(got.SizeBytes) != len(left)+len(right) {
		t.Fatalf("SizeBytes = %d, want %d", got.SizeBytes, len(left)+len(right))
	}

	gotLeft, gotRight := got.SplitStereo(buf[record.CameraMetadataSize:])
	if string(gotLeft) != string(left) || string(gotRight) != string(right) {
		t.Fatalf("SplitStereo() = (%v, %v), want (%v, %v)", gotLeft, gotRight, left, right)
	}
}
