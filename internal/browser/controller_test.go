package browser

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aistudioproxy/pkg/utils"
)

const testBaseURL = "https://aistudio.google.com/"

func testController(page Page) *PageController {
	retry := utils.RetryConfig{
		Attempts:     3,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Factor:       2.0,
		Jitter:       0,
	}
	return NewPageController(page, testBaseURL, 100*time.Millisecond, retry)
}

func TestNavigateNoopWhenAlreadyThere(t *testing.T) {
	page := newFakePage()
	page.url = testBaseURL
	ctrl := testController(page)

	require.NoError(t, ctrl.Navigate(context.Background()))
	assert.Empty(t, page.clicks)
}

func TestNavigateLoadsTarget(t *testing.T) {
	page := newFakePage()
	ctrl := testController(page)

	require.NoError(t, ctrl.Navigate(context.Background()))
	assert.Equal(t, testBaseURL, page.URL())
}

func TestClickRetriesThenFailsWithTimeout(t *testing.T) {
	page := newFakePage()
	page.clickErr = func(selector string) error {
		return errors.New("element not found")
	}
	ctrl := testController(page)

	err := ctrl.Click(context.Background(), selSendButton)
	require.Error(t, err)
	assert.True(t, utils.IsTimeout(err))
	assert.Len(t, page.clicks, 3)
}

func TestClickRecoversAfterTransientFailure(t *testing.T) {
	page := newFakePage()
	calls := 0
	page.clickErr = func(selector string) error {
		calls++
		if calls == 1 {
			return errors.New("detached")
		}
		return nil
	}
	ctrl := testController(page)

	require.NoError(t, ctrl.Click(context.Background(), selSendButton))
	assert.Len(t, page.clicks, 2)
}

func TestSwitchModelNotFoundAfterExactAttempts(t *testing.T) {
	page := newFakePage()
	page.clickTextErr = func(selector, text string) error {
		return errors.New("no match")
	}
	ctrl := testController(page)

	err := ctrl.SwitchModel(context.Background(), "Gemini 9")
	require.Error(t, err)
	assert.Equal(t, utils.ErrTypeModelNotFound, utils.ErrorType(err))

	// Each attempt opens the menu and tries the selection click.
	assert.Len(t, page.clicks, modelSwitchAttempts)
	assert.Len(t, page.clickTexts, modelSwitchAttempts)
	assert.Equal(t, modelSwitchAttempts*2, page.clickCount())
}

func TestSwitchModelSuccess(t *testing.T) {
	page := newFakePage()
	ctrl := testController(page)

	require.NoError(t, ctrl.SwitchModel(context.Background(), "Gemini 1.5 Pro"))

	assert.Equal(t, []string{selModelMenu}, page.clicks)
	require.Len(t, page.clickTexts, 1)
	assert.Contains(t, page.clickTexts[0], "Gemini 1.5 Pro")
	assert.Contains(t, page.waits, "text:"+selModelMenu+"|Gemini 1.5 Pro")
}

func TestSwitchModelMenuOpenFailure(t *testing.T) {
	page := newFakePage()
	page.clickErr = func(selector string) error {
		return errors.New("menu button missing")
	}
	ctrl := testController(page)

	err := ctrl.SwitchModel(context.Background(), "Gemini 1.5 Pro")
	require.Error(t, err)
	assert.Equal(t, utils.ErrTypeModelSwitchFailed, utils.ErrorType(err))
	assert.Empty(t, page.clickTexts)
}

func TestSwitchModelVerificationFailure(t *testing.T) {
	page := newFakePage()
	page.textVisibleErr = func(selector, text string) error {
		return errors.New("selector still shows old model")
	}
	ctrl := testController(page)

	err := ctrl.SwitchModel(context.Background(), "Gemini 1.5 Flash")
	require.Error(t, err)
	assert.Equal(t, utils.ErrTypeModelSwitchFailed, utils.ErrorType(err))
	assert.Len(t, page.clicks, modelSwitchAttempts)
}

func TestSendMessageFillsThenClicks(t *testing.T) {
	page := newFakePage()
	ctrl := testController(page)

	require.NoError(t, ctrl.SendMessage(context.Background(), "hello there"))
	assert.Equal(t, "hello there", page.fills[selChatInput])
	assert.Equal(t, []string{selSendButton}, page.clicks)
}

func TestSendMessageChatInputNotFound(t *testing.T) {
	page := newFakePage()
	page.fillErr = func(selector string) error {
		return errors.New("input missing")
	}
	ctrl := testController(page)

	err := ctrl.SendMessage(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, utils.ErrTypeChatInputNotFound, utils.ErrorType(err))
	// Send is never attempted when the fill failed.
	assert.Empty(t, page.clicks)
}

func TestSendMessageSendButtonNotFound(t *testing.T) {
	page := newFakePage()
	page.clickErr = func(selector string) error {
		return errors.New("button missing")
	}
	ctrl := testController(page)

	err := ctrl.SendMessage(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, utils.ErrTypeSendButtonNotFound, utils.ErrorType(err))
	assert.Equal(t, "hello", page.fills[selChatInput])
}

func TestWaitForResponseExtractsLatestBlock(t *testing.T) {
	page := newFakePage()
	page.textFn = func(selector string) (string, error) {
		if selector == selResponseBlock {
			return "General Kenobi", nil
		}
		return "", errors.New("unexpected selector")
	}
	ctrl := testController(page)

	text, err := ctrl.WaitForResponse(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "General Kenobi", text)
	assert.Contains(t, page.waits, "visible:"+selStopGenerating)
	assert.Contains(t, page.waits, "hidden:"+selStopGenerating)
}

func TestWaitForResponseExtractionFailure(t *testing.T) {
	page := newFakePage()
	ctrl := testController(page)

	_, err := ctrl.WaitForResponse(context.Background())
	require.Error(t, err)
	assert.Equal(t, utils.ErrTypeResponseExtractionFailed, utils.ErrorType(err))
}

func TestWaitForResponseTimeoutWhileGenerating(t *testing.T) {
	page := newFakePage()
	page.waitHiddenErr = func(selector string) error {
		return errors.New("still generating")
	}
	ctrl := testController(page)

	_, err := ctrl.WaitForResponse(context.Background())
	require.Error(t, err)
	assert.True(t, utils.IsTimeout(err))
}

func TestIsLoggedIn(t *testing.T) {
	page := newFakePage()
	ctrl := testController(page)
	assert.True(t, ctrl.IsLoggedIn(context.Background(), 50*time.Millisecond))

	page.waitVisibleErr = func(selector string) error {
		return errors.New("not visible")
	}
	assert.False(t, ctrl.IsLoggedIn(context.Background(), 50*time.Millisecond))
}

func TestCheckErrorResponseFindsFirstMatch(t *testing.T) {
	page := newFakePage()
	page.existsFn = func(selector string) (bool, error) {
		return strings.Contains(selector, `[role="alert"]`), nil
	}
	page.textFn = func(selector string) (string, error) {
		return "Quota exceeded", nil
	}
	ctrl := testController(page)

	text, found := ctrl.CheckErrorResponse(context.Background())
	assert.True(t, found)
	assert.Equal(t, "Quota exceeded", text)
}

func TestCheckErrorResponseSwallowsProbeFailures(t *testing.T) {
	page := newFakePage()
	page.existsFn = func(selector string) (bool, error) {
		return false, errors.New("probe blew up")
	}
	ctrl := testController(page)

	_, found := ctrl.CheckErrorResponse(context.Background())
	assert.False(t, found)
}

func TestStartStreamingResponseWiresObserver(t *testing.T) {
	page := newFakePage()
	// Stop indicator visible at start, so the stream does not end
	// until the done callback fires.
	page.existsFn = func(selector string) (bool, error) {
		return selector == selStopGenerating, nil
	}
	ctrl := testController(page)

	stream, err := ctrl.StartStreamingResponse(context.Background())
	require.NoError(t, err)
	require.Len(t, page.evaledJS, 1)
	assert.Contains(t, page.evaledJS[0], selChatHistory)
	assert.Contains(t, page.evaledJS[0], fnResponseChunk)

	push := page.exposedFns[fnResponseChunk]
	done := page.exposedFns[fnResponseDone]
	require.NotNil(t, push)
	require.NotNil(t, done)

	push("Hel")
	push("lo")
	push("!")
	done("")

	var got []string
	for {
		frag, err := stream.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, frag)
	}
	assert.Equal(t, []string{"Hel", "lo", "!"}, got)
}

func TestStartStreamingResponseObserverInstallFailure(t *testing.T) {
	page := newFakePage()
	page.evalErr = errors.New("execution context destroyed")
	ctrl := testController(page)

	_, err := ctrl.StartStreamingResponse(context.Background())
	require.Error(t, err)
	assert.Equal(t, utils.ErrTypeResponseExtractionFailed, utils.ErrorType(err))
}

func TestControllerCloseIdempotent(t *testing.T) {
	page := newFakePage()
	ctrl := testController(page)

	require.NoError(t, ctrl.Close())
	require.NoError(t, ctrl.Close())
	assert.True(t, page.IsClosed())
}
