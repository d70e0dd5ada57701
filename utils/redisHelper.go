package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/lalas825/jantile-tracker-v2-sub000/config"
)

// ProjectLock serializes ledger mutations per project. Returns a release
// func so the caller can hold the lock across its whole transaction.
//
// Redis being down degrades to a no-op lock: the single-writer assumption
// still holds at the deployment level, the lock only guards against
// double-submitted receipts.
func ProjectLock(ctx context.Context, projectId string, lockType string, moduleName string, functionName string) (func(), error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		logger.Warnf("%s.%s: redis lock not initialized; proceeding without %s lock", moduleName, functionName, lockType)
		return func() {}, nil
	}
	lockKey := fmt.Sprintf("%s:%s", lockType, projectId)
	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, nil)
	if err == redislock.ErrNotObtained {
		config.LogError(logger, moduleName, functionName, "Could not obtain lock for project", projectId, err)
		return nil, fmt.Errorf("another receipt is being applied for this project; retry shortly")
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining lock for project", projectId, err)
		return nil, err
	}
	return func() { _ = lock.Release(ctx) }, nil
}
