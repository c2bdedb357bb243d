package application

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/prsweeeet/tictactoe-pvp/internal/apperror"
	"github.com/prsweeeet/tictactoe-pvp/internal/config"
	"github.com/prsweeeet/tictactoe-pvp/internal/entity"
	"github.com/prsweeeet/tictactoe-pvp/internal/gamesync"
	"github.com/prsweeeet/tictactoe-pvp/internal/ledger"
	"github.com/prsweeeet/tictactoe-pvp/internal/payout"
	"github.com/prsweeeet/tictactoe-pvp/internal/repository"
	"github.com/prsweeeet/tictactoe-pvp/internal/repository/storage"
	"github.com/prsweeeet/tictactoe-pvp/internal/repository/storage/sqlite"
	"github.com/prsweeeet/tictactoe-pvp/internal/service"
)

var (
	ErrAddrNotFound    = errors.New("redis address string is empty")
	ErrNoIdentity      = errors.New("wallet identity is not configured")
	ErrUnknownRole     = errors.New("game role must be host or joiner")
	ErrNoInviteToken   = errors.New("joiner role requires an invite token")
	ErrSessionFinished = errors.New("session finished")
)

const (
	roleHost   = "host"
	roleJoiner = "joiner"
)

// RunApp - runs one player's client: it establishes or joins a session,
// keeps the local view synchronized with the shared store, reads moves from
// stdin and, on the losing side of a finished game, drives the payout.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	if conf.Wallet.Identity == "" {
		return ErrNoIdentity
	}

	redisAddrString := conf.Redis.GetRedisAddr()
	if redisAddrString == "" {
		return ErrAddrNotFound
	}

	redisStorage, err := storage.New(ctx, redisAddrString)
	if err != nil {
		return fmt.Errorf("could not connect to redis storage: %w", err)
	}

	defer func() {
		if err = redisStorage.Close(); err != nil {
			log.Error("could not close redis storage", "error", err)
		}
	}()

	archiveStorage, err := sqlite.New(conf.SQLiteStoragePath)
	if err != nil {
		return fmt.Errorf("could not open archive storage: %w", err)
	}

	defer func() {
		if err = archiveStorage.Close(); err != nil {
			log.Error("could not close archive storage", "error", err)
		}
	}()

	archiveRepo := repository.NewArchiveRepository(archiveStorage.Connection)
	if err = archiveRepo.Init(ctx); err != nil {
		return fmt.Errorf("could not init archive storage: %w", err)
	}

	sessionRepo := repository.NewSessionRepository(redisStorage)
	sessionService := service.NewSessionService(logger, sessionRepo, conf.Game.MinStake, conf.InviteSecret)

	session, err := establishSession(ctx, log, sessionService, conf)
	if err != nil {
		return fmt.Errorf("could not establish session: %w", err)
	}

	synchronizer := gamesync.New(logger, sessionRepo, session, conf.Game.PublishTimeout)
	ledgerClient := ledger.NewWalletRPCClient(conf.Wallet.SignerURL)
	orchestrator := payout.New(logger, ledgerClient, synchronizer, conf.Wallet.Identity, conf.Game.TransferTimeout)

	syncErrCh := make(chan error, 1)
	go func() {
		if syncErr := synchronizer.Run(ctx); syncErr != nil {
			syncErrCh <- syncErr
		}
	}()

	go readMoves(ctx, log, synchronizer, conf.Wallet.Identity)

	eventErrCh := make(chan error, 1)
	go func() {
		eventErrCh <- consumeEvents(ctx, log, conf, synchronizer, orchestrator, sessionService, archiveRepo)
	}()

	select {
	case err = <-syncErrCh:
		return fmt.Errorf("synchronizer error: %w", err)
	case err = <-eventErrCh:
		if errors.Is(err, ErrSessionFinished) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}

// establishSession creates the session as host or attaches to one as
// joiner, depending on the configured role.
func establishSession(ctx context.Context, log *slog.Logger, sessions service.SessionService, conf *config.Config) (*entity.Session, error) {
	switch conf.Game.Role {
	case roleHost:
		session, token, err := sessions.CreateSession(ctx, conf.Wallet.Identity, conf.Game.Stake)
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}

		log.Info("session created, share the invite with your opponent",
			"session", session.ID, "invite", token)

		return session, nil

	case roleJoiner:
		if conf.Game.InviteToken == "" {
			return nil, ErrNoInviteToken
		}

		session, err := sessions.JoinSession(ctx, conf.Game.InviteToken, conf.Wallet.Identity)
		if err != nil {
			return nil, fmt.Errorf("failed to join session: %w", err)
		}

		log.Info("joined session", "session", session.ID, "host", session.HostIdentity, "stake", session.Stake)

		return session, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, conf.Game.Role)
	}
}

// consumeEvents is the renderer side of the synchronizer: a read-only
// subscriber that turns accepted state changes into log lines and feeds
// terminal states to the payout orchestrator and the local archive.
func consumeEvents(
	ctx context.Context,
	log *slog.Logger,
	conf *config.Config,
	synchronizer *gamesync.Synchronizer,
	orchestrator *payout.Orchestrator,
	sessions service.SessionService,
	archive repository.ArchiveRepository,
) error {
	isHost := conf.Game.Role == roleHost

	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-synchronizer.Events():
			switch event.Kind {
			case gamesync.EventMoveReverted:
				log.Warn("move was reverted, the store did not acknowledge it", "error", event.Err)
			case gamesync.EventSyncWarning:
				log.Warn("suspect update from store, re-fetched authoritative state", "error", event.Err)
			case gamesync.EventStateChanged:
				renderState(log, event.Session, conf.Wallet.Identity)

				if isHost && event.Session.IsReady() {
					if _, err := sessions.StartSession(ctx, event.Session.ID); err != nil {
						log.Error("failed to start session", "error", err)
					}
				}

				if event.Session.IsTerminal() {
					go func(snapshot *entity.Session) {
						if err := orchestrator.Observe(ctx, snapshot); err != nil {
							log.Error("payout attempt failed", "error", err)
						}
					}(event.Session)

					if err := archive.RecordResult(ctx, event.Session); err != nil {
						log.Error("failed to archive match result", "error", err)
					}
				}
			}
		}
	}
}

// renderState prints the board and a short status line. The game result is
// reported independent of the payout outcome.
func renderState(log *slog.Logger, session *entity.Session, identity string) {
	var rows [3]string
	for i := 0; i < 3; i++ {
		cells := make([]string, 3)
		for j := 0; j < 3; j++ {
			cell := session.Board[i*3+j]
			if cell == entity.EmptyCell {
				cell = "."
			}
			cells[j] = cell
		}
		rows[i] = strings.Join(cells, " ")
	}

	log.Info("board", "row0", rows[0], "row1", rows[1], "row2", rows[2])

	switch session.Status {
	case entity.StatusAwaitingJoiner:
		log.Info("waiting for the opponent to join")
	case entity.StatusReady:
		log.Info("both players connected")
	case entity.StatusInProgress:
		mark, _ := session.MarkOf(identity)
		if session.Turn == mark {
			log.Info("your turn", "mark", mark)
		} else {
			log.Info("opponent's turn", "turn", session.Turn)
		}
	case entity.StatusWon:
		log.Info("game over", "winner", session.Winner,
			"payout_state", session.PayoutState, "payout_ref", session.PayoutRef)
	case entity.StatusDraw:
		log.Info("game over: draw, no transfers")
	}
}

// readMoves is the minimal input surface: one cell index per line.
func readMoves(ctx context.Context, log *slog.Logger, synchronizer *gamesync.Synchronizer, identity string) {
	scanner := bufio.NewScanner(os.Stdin)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cell, err := strconv.Atoi(line)
		if err != nil {
			log.Warn("expected a cell index 0-8", "input", line)
			continue
		}

		if err = synchronizer.SubmitMove(ctx, cell, identity); err != nil {
			switch {
			case errors.Is(err, apperror.ErrNotYourTurn),
				errors.Is(err, apperror.ErrCellOccupied),
				errors.Is(err, apperror.ErrInvalidCell),
				errors.Is(err, apperror.ErrGameNotInProgress),
				errors.Is(err, apperror.ErrMoveInFlight):
				log.Warn("move rejected", "error", err)
			default:
				log.Error("failed to submit move", "error", err)
			}
		}
	}
}
