package bidding

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Sweeper 定时结算已到结束时间的拍卖场次。
type Sweeper struct {
	cron *cron.Cron
	svc  *Service
	log  *logrus.Entry
}

// NewSweeper schedule 为 cron 表达式，例如 "@every 30s"。
func NewSweeper(svc *Service, schedule string, log *logrus.Entry) (*Sweeper, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	sw := &Sweeper{
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		svc:  svc,
		log:  log.WithField("component", "auction-sweeper"),
	}
	if _, err := sw.cron.AddFunc(schedule, sw.RunOnce); err != nil {
		return nil, err
	}
	return sw, nil
}

// RunOnce 执行一次结算。
func (sw *Sweeper) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := sw.svc.CloseExpired(ctx)
	if err != nil {
		sw.log.WithError(err).Error("close expired auctions failed")
		return
	}
	if n > 0 {
		sw.log.WithField("closed", n).Info("expired auctions finalized")
	}
}

func (sw *Sweeper) Start() { sw.cron.Start() }

// Stop 停止调度并等待正在执行的任务结束。
func (sw *Sweeper) Stop(ctx context.Context) {
	done := sw.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
