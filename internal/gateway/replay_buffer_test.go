package gateway

import "testing"

func TestReplayBuffer_Range(t *testing.T) {
	rb := NewReplayBuffer(100)

	for i := int64(1); i <= 10; i++ {
		rb.Push(i, []byte("msg"))
	}

	got := rb.Range(3, 7)
	if len(got) != 5 {
		t.Fatalf("Range(3,7): expected 5, got %d", len(got))
	}
	for i, e := range got {
		expected := int64(i) + 3
		if e.Seq != expected {
			t.Errorf("entry[%d].Seq = %d, want %d", i, e.Seq, expected)
		}
	}
}

func TestReplayBuffer_Wraparound(t *testing.T) {
	rb := NewReplayBuffer(5)

	// seqs 1-3 get evicted
	for i := int64(1); i <= 8; i++ {
		rb.Push(i, []byte("msg"))
	}

	if rb.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", rb.Len())
	}
	got := rb.Range(1, 10)
	if len(got) != 5 {
		t.Fatalf("Range(1,10): expected 5, got %d", len(got))
	}
	if got[0].Seq != 4 {
		t.Errorf("oldest entry seq = %d, want 4", got[0].Seq)
	}
	if got[4].Seq != 8 {
		t.Errorf("newest entry seq = %d, want 8", got[4].Seq)
	}
}

func TestReplayBuffer_Empty(t *testing.T) {
	rb := NewReplayBuffer(10)
	if got := rb.Range(1, 100); len(got) != 0 {
		t.Fatalf("empty buffer Range should return 0, got %d", len(got))
	}
	envs, complete := rb.Since(0)
	if len(envs) != 0 || !complete {
		t.Fatalf("empty Since = (%d, %v), want (0, true)", len(envs), complete)
	}
}

func TestReplayBuffer_Since(t *testing.T) {
	rb := NewReplayBuffer(4)
	for i := int64(1); i <= 6; i++ {
		rb.Push(i, []byte{byte('0' + i)})
	}

	// buffer holds 3..6
	envs, complete := rb.Since(4)
	if !complete {
		t.Error("gap from 4 is covered, want complete")
	}
	if len(envs) != 2 || string(envs[0]) != "5" || string(envs[1]) != "6" {
		t.Errorf("Since(4) = %q", envs)
	}

	if _, complete := rb.Since(2); !complete {
		t.Error("seq 3 is still buffered, want complete")
	}
	envs, complete = rb.Since(1)
	if complete {
		t.Error("seq 2 was evicted, want incomplete")
	}
	if len(envs) != 4 {
		t.Errorf("Since(1) returned %d envelopes, want 4", len(envs))
	}
}

func TestReplayBuffer_CopiesData(t *testing.T) {
	rb := NewReplayBuffer(2)
	data := []byte("abc")
	rb.Push(1, data)
	data[0] = 'x'
	if got := rb.Range(1, 1); string(got[0].Data) != "abc" {
		t.Errorf("buffer aliased caller slice: %q", got[0].Data)
	}
}

func TestReplayBuffer_GapRestartsWindow(t *testing.T) {
	rb := NewReplayBuffer(8)
	for i := int64(1); i <= 3; i++ {
		rb.Push(i, []byte("a"))
	}
	rb.Push(10, []byte("b"))

	if rb.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after a seq gap", rb.Len())
	}
	if _, complete := rb.Since(3); complete {
		t.Error("seqs 4..9 were never buffered, want incomplete")
	}
	if got := rb.Range(1, 10); len(got) != 1 || got[0].Seq != 10 {
		t.Errorf("Range = %+v", got)
	}
}
