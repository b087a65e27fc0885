package redisrepo

import (
	"fmt"

	"github.com/google/uuid"
)

const ns = "studio:v1"

func KeyEditionStructure(editionID uuid.UUID) string {
	return fmt.Sprintf("%s:edition:%s:structure", ns, editionID)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func KeyIdemRegistration(ref, idemKey string) string {
	return fmt.Sprintf("%s:idem:register:%s:%s", ns, ref, idemKey)
}

func ChannelAvailabilityChanged() string {
	return ns + ":availability:changed"
}
