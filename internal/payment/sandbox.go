package payment

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// SessionIDPlaceholder 出现在 SuccessURL/CancelURL 中时会被替换为会话 id。
const SessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"

// Sandbox 本地支付：不收款，直接把用户送到成功页。
type Sandbox struct{}

func NewSandbox() *Sandbox { return &Sandbox{} }

func (Sandbox) CreateSession(_ context.Context, req SessionRequest) (Session, error) {
	if err := req.validate(); err != nil {
		return Session{}, err
	}
	id := "sbx_" + uuid.NewString()
	return Session{
		ID:  id,
		URL: strings.ReplaceAll(req.SuccessURL, SessionIDPlaceholder, id),
	}, nil
}

// Paid 沙箱不收款，只认自己签发的会话。
func (Sandbox) Paid(_ context.Context, sessionID string) (bool, error) {
	return strings.HasPrefix(sessionID, "sbx_"), nil
}
