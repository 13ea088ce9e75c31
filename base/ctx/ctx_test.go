package ctx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type testsuite struct {
	suite.Suite
}

func Test(t *testing.T) {
	suite.Run(t, new(testsuite))
}

func (ts *testsuite) TestWithValue() {
	bg := Background()
	ctx := WithValue(bg, "foo", "bar")
	ts.Equal("bar", ctx.Value("foo"))
}

func (ts *testsuite) TestWithValues() {
	bg := Background()
	ctx := WithValues(bg, map[string]interface{}{
		"a": "b",
		"c": "d",
	})
	ts.Equal("b", ctx.Value("a"))
	ts.Equal("d", ctx.Value("c"))
}

func (ts *testsuite) TestWithCancel() {
	bg := Background()
	ctx, cancel := WithCancel(bg)
	defer cancel()
	after100Ms := func(ctx context.Context) bool {
		for {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(100 * time.Millisecond):
				return true
			}
		}
	}
	res := true
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	res = after100Ms(ctx)
	ts.Equal(false, res)
}

func (ts *testsuite) TestTimeout() {
	bg := Background()
	ctx, cancel := WithTimeout(bg, 10*time.Millisecond)
	defer cancel()
	after100Ms := func(ctx context.Context) bool {
		for {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(100 * time.Millisecond):
				return true
			}
		}
	}
	res := after100Ms(ctx)
	ts.Equal(false, res)
	ts.Equal("context deadline exceeded", ctx.Err().Error())
}

func (ts *testsuite) TestDetach() {
	parent, cancel := WithCancel(WithValue(Background(), "auctionId", "a1"))
	detached := Detach(parent)
	cancel()

	ts.Error(parent.Err())
	ts.NoError(detached.Err())
	ts.Nil(detached.Done())
	ts.Equal("a1", detached.Value("auctionId"))
}

func (ts *testsuite) TestDetachKeepsLogFields() {
	parent, cancel := WithTimeout(WithValue(Background(), "seq", 7), time.Nanosecond)
	defer cancel()
	<-parent.Done()

	detached := Detach(parent)
	_, hasDeadline := detached.Deadline()
	ts.False(hasDeadline)
	ts.Equal(parent.Logger, detached.Logger)

	// a fresh timeout on the detached ctx works normally
	child, cancelChild := WithTimeout(detached, time.Hour)
	defer cancelChild()
	ts.NoError(child.Err())
	ts.Equal(7, child.Value("seq"))
}
