package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/radieske/microbet-engine-poc/internal/microbet/archive"
	"github.com/radieske/microbet-engine-poc/internal/shared/config"
	"github.com/radieske/microbet-engine-poc/internal/shared/db"
	"github.com/radieske/microbet-engine-poc/internal/shared/logger"
)

// ledger-replay: reconciliação offline. Recomputa o saldo de cada
// usuário a partir da sequência arquivada de records e compara com o
// snapshot do último record. Divergência indica corrupção do arquivo
// ou bug de liquidação; exit code 1 para alarmar o operador.
func main() {
	cfg := config.Load()
	log, err := logger.New("ledger-replay", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg", zap.Error(err))
	}
	defer pg.Close()

	arch := archive.NewPostgres(pg)
	ctx := context.Background()

	users := []string{}
	if u := os.Getenv("REPLAY_USER_ID"); u != "" {
		users = append(users, u)
	} else {
		users, err = arch.Users(ctx)
		if err != nil {
			log.Fatal("list users", zap.Error(err))
		}
	}

	diverged := 0
	for _, userID := range users {
		replayed, err := arch.ReplayBalance(ctx, userID)
		if err != nil {
			log.Error("replay", zap.String("userId", userID), zap.Error(err))
			diverged++
			continue
		}
		betting, held, reserve, err := arch.LastSnapshot(ctx, userID)
		if err != nil {
			log.Error("last snapshot", zap.String("userId", userID), zap.Error(err))
			diverged++
			continue
		}

		if replayed.BettingCents != betting || replayed.HeldCents != held || replayed.ReserveCents != reserve {
			diverged++
			log.Error("saldo divergente",
				zap.String("userId", userID),
				zap.Int64("replayBetting", replayed.BettingCents),
				zap.Int64("snapshotBetting", betting),
				zap.Int64("replayHeld", replayed.HeldCents),
				zap.Int64("snapshotHeld", held),
				zap.Int64("replayReserve", replayed.ReserveCents),
				zap.Int64("snapshotReserve", reserve),
			)
			continue
		}
		log.Info("saldo reconciliado",
			zap.String("userId", userID),
			zap.Int64("bettingCents", betting),
			zap.Int64("heldCents", held),
			zap.Int64("reserveCents", reserve),
		)
	}

	if diverged > 0 {
		log.Error("reconciliação encontrou divergências", zap.Int("users", diverged))
		os.Exit(1)
	}
}
