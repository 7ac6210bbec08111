package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
	"github.com/shopspring/decimal"
)

// transferShape is the canonical request shape hashed for idempotency
// conflict detection. No floats, no maps; the JSON is canonicalized with
// RFC 8785 before hashing so the hash is stable across encoders.
type transferShape struct {
	ActorUserID    string `json:"actor_user_id"`
	FromAccountID  string `json:"from_account_id"`
	ToAccountID    string `json:"to_account_id"`
	Amount         string `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

func transferRequestHash(actorUserID, fromID, toID uuid.UUID, amount decimal.Decimal, key string) (string, error) {
	raw, err := json.Marshal(transferShape{
		ActorUserID:    actorUserID.String(),
		FromAccountID:  fromID.String(),
		ToAccountID:    toID.String(),
		Amount:         amount.String(),
		IdempotencyKey: key,
	})
	if err != nil {
		return "", err
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
