package watcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"solguess/pkg/guesser"
	"solguess/pkg/models"
	"solguess/pkg/rpc"
	"solguess/pkg/state"
	"solguess/pkg/utils"
	"solguess/pkg/wallet"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const GuessLength = 4

// User-facing status messages.
const (
	MsgInvalidLength = "You have to guess a number with 4 digits. Check your input and try again."
	MsgPending       = "Calling the blockchain to check your guess... please accept the transaction in your wallet. (estimated time: 15 seconds)"
	MsgWon           = "You won! Congratulations!! The prize has been transferred to your wallet."
	MsgLost          = "Sorry... you didn't guess the right number. Better luck next time!"
	MsgCooldown      = "You have to wait 30 seconds before trying again."
	MsgFailed        = "Something wrong happened with the transaction or it was rejected by you. Please, try again."
	MsgHistoryFailed = "There was an error trying to get your guesses. Please, try again."
)

// cooldownMarker is the fragment of the contract's revert reason that
// identifies a guess sent before the cooldown elapsed.
const cooldownMarker = "cooldown time"

var (
	ErrInvalidGuess = errors.New("guess must have 4 characters")
	ErrNoAccount    = errors.New("no active account")
	ErrFeeUnknown   = errors.New("guess fee not loaded yet")
	ErrReadOnly     = errors.New("read-only connection cannot send transactions")
)

// Contract is the guessing contract as the watcher uses it.
type Contract interface {
	GuessFee(ctx context.Context) (*big.Int, error)
	CurrentPrize(ctx context.Context) (*big.Int, error)
	NumberOfGuesses(ctx context.Context) (*big.Int, error)
	SimulateGuess(ctx context.Context, from common.Address, guess string, value *big.Int) error
	SubmitGuess(ctx context.Context, opts guesser.TransactOpts, guess string) (*models.GuessAttempt, error)
	PastGuesses(ctx context.Context, guesser common.Address) ([]models.GuessAttempt, error)
	Watch(ctx context.Context, kind models.EventKind, sink chan<- models.ContractEvent) (event.Subscription, error)
}

// PriceSource defines the interface for fetching the ETH/USD quote.
type PriceSource interface {
	FetchEthPrice(ctx context.Context) (models.PriceData, error)
}

// HTTPPriceSource implements PriceSource using the rpc package.
type HTTPPriceSource struct {
	URL string
}

func (s *HTTPPriceSource) FetchEthPrice(ctx context.Context) (models.PriceData, error) {
	return rpc.FetchEthPrice(ctx, s.URL)
}

// GuessResult is the outcome of one guess submission.
type GuessResult struct {
	Status  models.StatusView    `json:"status"`
	Attempt *models.GuessAttempt `json:"attempt,omitempty"`
	Err     string               `json:"error,omitempty"`
}

// Watcher keeps the UI state in sync with the contract and the price
// endpoint and runs the user operations. Writes to the state from polls,
// contract events and guesses are not ordered against each other; the
// last write wins.
type Watcher struct {
	contract Contract
	prices   PriceSource
	provider wallet.Provider
	chainID  *big.Int

	clock         clockwork.Clock
	pollInterval  time.Duration
	resubscribeIn time.Duration

	state       models.UIState
	subscribers []Subscriber
	mu          sync.RWMutex

	subs    []event.Subscription
	refresh chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type Option func(*Watcher)

func WithClock(clock clockwork.Clock) Option {
	return func(w *Watcher) { w.clock = clock }
}

func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithProvider enables transactions signed by provider for chainID.
func WithProvider(provider wallet.Provider, chainID *big.Int) Option {
	return func(w *Watcher) {
		w.provider = provider
		w.chainID = chainID
	}
}

// NewWatcher creates a new Watcher instance for session.
func NewWatcher(contract Contract, prices PriceSource, session models.Session, opts ...Option) *Watcher {
	w := &Watcher{
		contract:      contract,
		prices:        prices,
		clock:         clockwork.NewRealClock(),
		pollInterval:  60 * time.Second,
		resubscribeIn: 10 * time.Second,
		state:         state.Initial(session),
		refresh:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Subscribe adds a new subscriber and returns a channel to receive events.
func (w *Watcher) Subscribe() Subscriber {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(Subscriber, 100)
	w.subscribers = append(w.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber.
func (w *Watcher) Unsubscribe(ch Subscriber) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, sub := range w.subscribers {
		if sub == ch {
			w.subscribers = append(w.subscribers[:i], w.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

// State returns a snapshot of the current UI state.
func (w *Watcher) State() models.UIState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// update applies fn to the state and broadcasts the result.
func (w *Watcher) update(typ EventType, fn func(models.UIState) models.UIState) models.UIState {
	w.mu.Lock()
	w.state = fn(w.state)
	snapshot := w.state
	w.mu.Unlock()
	w.notify(Event{Type: typ, State: snapshot})
	return snapshot
}

func (w *Watcher) notify(ev Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, sub := range w.subscribers {
		select {
		case sub <- ev:
		default:
			// slow subscriber, it will catch up on the next event
		}
	}
}

func (w *Watcher) syncFailed(what string, err error) {
	log.Warn().Err(err).Str("fetch", what).Msg("sync failed")
	w.notify(Event{Type: EventSyncFailed, State: w.State(), Err: fmt.Sprintf("%s: %v", what, err)})
}

// Start subscribes to account changes and contract events and begins the
// periodic sync. The first sync runs immediately.
func (w *Watcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	if w.provider != nil && !w.State().Session.ReadOnly {
		w.watchAccounts(ctx)
	}
	w.watchContract(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollingLoop(ctx)
	}()
}

// Stop unsubscribes everything and waits for the background loops.
func (w *Watcher) Stop() {
	w.mu.Lock()
	subs := w.subs
	w.subs = nil
	cancel := w.cancel
	w.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
}

// Refresh requests an immediate sync without waiting for the next tick.
func (w *Watcher) Refresh() {
	select {
	case w.refresh <- struct{}{}:
	default:
	}
}

func (w *Watcher) pollingLoop(ctx context.Context) {
	w.fetchAll(ctx)

	ticker := w.clock.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			w.fetchAll(ctx)
		case <-w.refresh:
			w.fetchAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// fetchAll starts the four fetches and returns without waiting. A failed
// or stalled fetch never holds up the others or the next tick.
func (w *Watcher) fetchAll(ctx context.Context) {
	for _, fetch := range []func(context.Context){w.fetchFee, w.fetchPrize, w.fetchCount, w.fetchPrice} {
		w.spawn(ctx, fetch)
	}
}

func (w *Watcher) fetchFee(ctx context.Context) {
	fee, err := w.contract.GuessFee(ctx)
	if err != nil {
		w.syncFailed("guess fee", err)
		return
	}
	now := w.clock.Now()
	w.update(EventPricesUpdated, func(s models.UIState) models.UIState {
		return state.WithGuessFee(s, fee, now)
	})
}

func (w *Watcher) fetchPrize(ctx context.Context) {
	prize, err := w.contract.CurrentPrize(ctx)
	if err != nil {
		w.syncFailed("prize", err)
		return
	}
	now := w.clock.Now()
	w.update(EventPricesUpdated, func(s models.UIState) models.UIState {
		return state.WithPrize(s, prize, now)
	})
}

func (w *Watcher) fetchCount(ctx context.Context) {
	count, err := w.contract.NumberOfGuesses(ctx)
	if err != nil {
		w.syncFailed("guess count", err)
		return
	}
	now := w.clock.Now()
	w.update(EventCountUpdated, func(s models.UIState) models.UIState {
		return state.WithGuessCount(s, count, now)
	})
}

func (w *Watcher) fetchPrice(ctx context.Context) {
	data, err := w.prices.FetchEthPrice(ctx)
	if err != nil {
		w.syncFailed("eth price", err)
		return
	}
	now := w.clock.Now()
	w.update(EventPricesUpdated, func(s models.UIState) models.UIState {
		return state.WithEthPrice(s, data.Price, now)
	})
}

func (w *Watcher) addSub(sub event.Subscription) {
	w.mu.Lock()
	w.subs = append(w.subs, sub)
	w.mu.Unlock()
}

func (w *Watcher) watchAccounts(ctx context.Context) {
	changes := make(chan []common.Address, 4)
	sub := w.provider.SubscribeAccounts(changes)
	w.addSub(sub)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case accs := <-changes:
				var account common.Address
				if len(accs) > 0 {
					account = accs[0]
				}
				log.Info().Str("account", account.Hex()).Msg("active account changed")
				w.update(EventAccountChanged, func(s models.UIState) models.UIState {
					return state.WithAccount(s, account)
				})
			case err, ok := <-sub.Err():
				if ok && err != nil {
					log.Warn().Err(err).Msg("account subscription ended")
				}
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// watchContract subscribes to the three contract events. Each
// subscription logs its own delivery errors and is re-established after
// a failure.
func (w *Watcher) watchContract(ctx context.Context) {
	sink := make(chan models.ContractEvent, 16)
	for _, kind := range []models.EventKind{models.EventNewGuess, models.EventNewPrize, models.EventNewGuessFee} {
		kind := kind
		sub := event.ResubscribeErr(w.resubscribeIn, func(ctx context.Context, lastErr error) (event.Subscription, error) {
			if lastErr != nil {
				log.Warn().Err(lastErr).Str("event", string(kind)).Msg("event subscription failed")
			}
			return w.contract.Watch(ctx, kind, sink)
		})
		w.addSub(sub)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case ev := <-sink:
				w.handleEvent(ctx, ev)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (w *Watcher) handleEvent(ctx context.Context, ev models.ContractEvent) {
	log.Debug().Str("event", string(ev.Kind)).Msg("contract event")
	switch ev.Kind {
	case models.EventNewGuess:
		w.spawn(ctx, w.fetchCount)
	case models.EventNewPrize:
		now := w.clock.Now()
		w.update(EventPricesUpdated, func(s models.UIState) models.UIState {
			return state.WithPrize(s, ev.Prize, now)
		})
	case models.EventNewGuessFee:
		w.spawn(ctx, w.fetchFee)
	}
}

func (w *Watcher) spawn(ctx context.Context, f func(context.Context)) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		f(ctx)
	}()
}

// SubmitGuess validates value, simulates the guess, sends it and reports
// whether it won. The history is refreshed after every mined guess.
func (w *Watcher) SubmitGuess(ctx context.Context, value string) GuessResult {
	if utf8.RuneCountInString(value) != GuessLength {
		s := w.update(EventStatusUpdated, func(s models.UIState) models.UIState {
			return state.WithStatus(s, models.StatusInvalid, MsgInvalidLength)
		})
		return GuessResult{Status: s.Status, Err: ErrInvalidGuess.Error()}
	}

	snapshot := w.update(EventStatusUpdated, func(s models.UIState) models.UIState {
		return state.WithStatus(s, models.StatusPending, MsgPending)
	})

	attempt, err := w.sendGuess(ctx, snapshot, value)
	if err != nil {
		msg := classifyError(err)
		log.Warn().Err(err).Str("guess", value).Str("reason", guesser.RevertReason(err)).Msg("guess failed")
		s := w.update(EventStatusUpdated, func(s models.UIState) models.UIState {
			return state.WithStatus(s, models.StatusFailed, msg)
		})
		return GuessResult{Status: s.Status, Err: err.Error()}
	}

	kind, msg := models.StatusLost, MsgLost
	if attempt.Value == value && attempt.Correct {
		kind, msg = models.StatusWon, MsgWon
	}
	log.Info().Str("guess", value).Bool("correct", attempt.Correct).Str("tx", attempt.TxHash.Hex()).Msg("guess mined")
	s := w.update(EventStatusUpdated, func(s models.UIState) models.UIState {
		return state.WithStatus(s, kind, msg)
	})

	w.RefreshHistory(ctx)
	return GuessResult{Status: s.Status, Attempt: attempt}
}

func (w *Watcher) sendGuess(ctx context.Context, snapshot models.UIState, value string) (*models.GuessAttempt, error) {
	if snapshot.Session.ReadOnly || w.provider == nil {
		return nil, ErrReadOnly
	}
	if !snapshot.Session.HasAccount {
		return nil, ErrNoAccount
	}
	if snapshot.Prices.GuessFee == "" {
		return nil, ErrFeeUnknown
	}
	// The payment is derived from the displayed fee.
	payment, err := utils.ToWei(snapshot.Prices.GuessFee)
	if err != nil {
		return nil, fmt.Errorf("invalid fee %q: %w", snapshot.Prices.GuessFee, err)
	}

	from := snapshot.Session.Account
	if err := w.contract.SimulateGuess(ctx, from, value, payment); err != nil {
		return nil, fmt.Errorf("simulation rejected: %w", err)
	}

	provider, chainID := w.provider, w.chainID
	return w.contract.SubmitGuess(ctx, guesser.TransactOpts{
		From:  from,
		Value: payment,
		Signer: func(account common.Address, tx *types.Transaction) (*types.Transaction, error) {
			return provider.SignTx(account, tx, chainID)
		},
	}, value)
}

// classifyError picks the status message for a failed guess.
func classifyError(err error) string {
	if strings.Contains(err.Error(), cooldownMarker) || strings.Contains(guesser.RevertReason(err), cooldownMarker) {
		return MsgCooldown
	}
	return MsgFailed
}

// ToggleHistory hides a visible history, or fetches and shows it.
func (w *Watcher) ToggleHistory(ctx context.Context) models.HistoryView {
	if w.State().History.Visible {
		s := w.update(EventHistoryUpdated, state.HideHistory)
		return s.History
	}
	return w.RefreshHistory(ctx)
}

// RefreshHistory fetches the active account's guesses and shows the
// newest ones. On failure the error text replaces the table and the toggle
// keeps its state.
func (w *Watcher) RefreshHistory(ctx context.Context) models.HistoryView {
	account := w.State().Session.Account
	attempts, err := w.contract.PastGuesses(ctx, account)
	if err != nil {
		log.Warn().Err(err).Str("account", account.Hex()).Msg("failed to fetch guesses")
		s := w.update(EventHistoryUpdated, func(s models.UIState) models.UIState {
			return state.HistoryFailed(s, MsgHistoryFailed)
		})
		return s.History
	}
	s := w.update(EventHistoryUpdated, func(s models.UIState) models.UIState {
		return state.ShowHistory(s, attempts)
	})
	return s.History
}
