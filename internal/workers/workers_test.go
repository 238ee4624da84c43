package workers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"tradedaemon/internal/eventbus"
	"tradedaemon/internal/models"
)

// --- fakes shared across worker tests ---

type fakeStore struct {
	strategy      *models.Strategy
	activeCalls   int
	configCalls   int
	positionCalls int
	trades        []models.TradeLogItem
}

func (s *fakeStore) Get(id string) (*models.Strategy, error) {
	if s.strategy == nil {
		return nil, nil
	}
	cp := *s.strategy
	return &cp, nil
}

func (s *fakeStore) UpdateActive(id string, active bool) error {
	s.activeCalls++
	s.strategy.IsActive = active
	return nil
}

func (s *fakeStore) UpdateConfig(id string, config json.RawMessage) error {
	s.configCalls++
	s.strategy.Config = config
	return nil
}

func (s *fakeStore) UpdatePosition(id string, isOpen bool, position *models.PerpPosition) error {
	s.positionCalls++
	return nil
}

func (s *fakeStore) AppendTrade(strategyID string, trade models.TradeLogItem) error {
	s.trades = append(s.trades, trade)
	return nil
}

type fakePrices struct {
	price float64
	err   error
}

func (p *fakePrices) GetPrice(ctx context.Context, mint string) (float64, error) {
	return p.price, p.err
}

type fakeBalances struct {
	native uint64
	token  map[string]uint64
	err    error
}

func (b *fakeBalances) NativeBalance(ctx context.Context, pubkey string) (uint64, error) {
	return b.native, b.err
}

func (b *fakeBalances) TokenBalance(ctx context.Context, owner, mint string) (uint64, error) {
	return b.token[mint], b.err
}

type fakeSwap struct {
	calls  int
	result *models.SwapResult
	err    error
}

func (f *fakeSwap) Execute(ctx context.Context, req *models.SwapRequest, strategyID, strategyKind, walletPubkey, platformFeeAccount string, platformFeeBps int) (*models.SwapResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeTransferer struct {
	calls int
	sig   string
	err   error
}

func (f *fakeTransferer) TransferNative(ctx context.Context, fromKeypair []byte, toPubkey string, lamports uint64) (string, error) {
	f.calls++
	return f.sig, f.err
}

func newStrategy(kind models.StrategyKind, cfg any) *models.Strategy {
	encoded, _ := json.Marshal(cfg)
	return &models.Strategy{
		ID:              uuid.New(),
		Kind:            kind,
		TradingWalletID: uuid.New(),
		IsActive:        true,
		Config:          encoded,
	}
}

// --- PriceMonitor ---

func TestPriceMonitorFiresAndAutoPauses(t *testing.T) {
	cfg := models.PriceMonitorConfig{TargetPrice: 100, Direction: models.PriceDirectionAbove, PercentageToSell: 50}
	store := &fakeStore{strategy: newStrategy(models.KindPriceMonitor, cfg)}
	prices := &fakePrices{price: 101}
	chain := &fakeBalances{native: 1_000_000_000}
	swap := &fakeSwap{result: &models.SwapResult{Signature: "sig1"}}

	w := NewPriceMonitor("s1", "wallet", []byte("key"), "native", "quote", "", 0, store, prices, chain, swap)
	w.tick(context.Background())

	if swap.calls != 1 {
		t.Fatalf("expected 1 swap call, got %d", swap.calls)
	}
	if store.activeCalls != 1 {
		t.Fatalf("expected auto-pause to call UpdateActive once, got %d", store.activeCalls)
	}
	if len(store.trades) != 1 || !store.trades[0].Success {
		t.Fatalf("expected one successful trade log entry, got %+v", store.trades)
	}

	var saved models.PriceMonitorConfig
	if err := json.Unmarshal(store.strategy.Config, &saved); err != nil {
		t.Fatalf("decoding persisted config: %v", err)
	}
	if !saved.Completed {
		t.Fatal("expected config to be marked completed")
	}
}

func TestPriceMonitorSkipsWhenBelowTarget(t *testing.T) {
	cfg := models.PriceMonitorConfig{TargetPrice: 100, Direction: models.PriceDirectionAbove}
	store := &fakeStore{strategy: newStrategy(models.KindPriceMonitor, cfg)}
	prices := &fakePrices{price: 50}
	swap := &fakeSwap{result: &models.SwapResult{Signature: "sig1"}}

	w := NewPriceMonitor("s1", "wallet", []byte("key"), "native", "quote", "", 0, store, prices, &fakeBalances{native: 1_000_000_000}, swap)
	w.tick(context.Background())

	if swap.calls != 0 {
		t.Fatalf("expected no swap below target, got %d calls", swap.calls)
	}
}

func TestPriceMonitorRespectsCooldown(t *testing.T) {
	cfg := models.PriceMonitorConfig{TargetPrice: 100, Direction: models.PriceDirectionAbove, PercentageToSell: 50, LastTriggeredAt: time.Now()}
	store := &fakeStore{strategy: newStrategy(models.KindPriceMonitor, cfg)}
	swap := &fakeSwap{result: &models.SwapResult{Signature: "sig1"}}

	w := NewPriceMonitor("s1", "wallet", nil, "native", "quote", "", 0, store, &fakePrices{price: 200}, &fakeBalances{native: 1_000_000_000}, swap)
	w.tick(context.Background())

	if swap.calls != 0 {
		t.Fatalf("expected cooldown to suppress swap, got %d calls", swap.calls)
	}
}

// --- Vault ---

func TestVaultCapturesOnForeignTradeEvent(t *testing.T) {
	cfg := models.VaultConfig{VaultPercentage: 10, MainWalletPubkey: "main"}
	store := &fakeStore{strategy: newStrategy(models.KindVault, cfg)}
	chain := &fakeBalances{native: 1_000_000_000}
	transferer := &fakeTransferer{sig: "captured-sig"}

	w, err := NewVault("s1", "wallet", []byte("key"), "native", cfg, store, chain, transferer, eventbus.New())
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	w.onTradeEvent(eventbus.TradeSuccessEvent{TradingWalletPubkey: "wallet", StrategyKind: string(models.KindPriceMonitor)})

	if transferer.calls != 1 {
		t.Fatalf("expected 1 capture transfer, got %d", transferer.calls)
	}
	if len(store.trades) != 1 || !store.trades[0].Success {
		t.Fatalf("expected one successful trade log entry, got %+v", store.trades)
	}
}

func TestVaultIgnoresItsOwnKind(t *testing.T) {
	cfg := models.VaultConfig{VaultPercentage: 10, MainWalletPubkey: "main"}
	store := &fakeStore{strategy: newStrategy(models.KindVault, cfg)}
	transferer := &fakeTransferer{sig: "sig"}

	w, err := NewVault("s1", "wallet", []byte("key"), "native", cfg, store, &fakeBalances{native: 1_000_000_000}, transferer, eventbus.New())
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	w.onTradeEvent(eventbus.TradeSuccessEvent{TradingWalletPubkey: "wallet", StrategyKind: string(models.KindVault)})

	if transferer.calls != 0 {
		t.Fatalf("expected self-kind filter to suppress capture, got %d calls", transferer.calls)
	}
}

func TestVaultIgnoresOtherWallets(t *testing.T) {
	cfg := models.VaultConfig{VaultPercentage: 10, MainWalletPubkey: "main"}
	store := &fakeStore{strategy: newStrategy(models.KindVault, cfg)}
	transferer := &fakeTransferer{sig: "sig"}

	w, err := NewVault("s1", "wallet", []byte("key"), "native", cfg, store, &fakeBalances{native: 1_000_000_000}, transferer, eventbus.New())
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	w.onTradeEvent(eventbus.TradeSuccessEvent{TradingWalletPubkey: "someone-else", StrategyKind: string(models.KindPriceMonitor)})

	if transferer.calls != 0 {
		t.Fatalf("expected foreign-wallet event to be ignored, got %d calls", transferer.calls)
	}
}

// --- Levels ---

func TestLevelsExecutesSellLevelOnDownwardCrossing(t *testing.T) {
	pct := 50.0
	cfg := models.LevelsConfig{
		Mode:   models.LevelsModeSell,
		Levels: []models.Level{{ID: "l1", Type: models.LevelStopLoss, Price: 90, SOLPercentage: &pct}},
	}
	store := &fakeStore{strategy: newStrategy(models.KindLevels, cfg)}
	swap := &fakeSwap{result: &models.SwapResult{Signature: "sig1", Message: "ok"}}

	w, err := NewLevels("s1", "wallet", []byte("key"), "native", "usdc", "", 0, cfg, store, &fakePrices{price: 85}, &fakeBalances{native: 1_000_000_000}, swap)
	if err != nil {
		t.Fatalf("NewLevels: %v", err)
	}
	w.tick(context.Background())

	if swap.calls != 1 {
		t.Fatalf("expected level to execute once, got %d calls", swap.calls)
	}

	var saved models.LevelsConfig
	if err := json.Unmarshal(store.strategy.Config, &saved); err != nil {
		t.Fatalf("decoding persisted config: %v", err)
	}
	if !saved.Levels[0].Executed {
		t.Fatal("expected level to be marked executed")
	}
}

func TestLevelsSkipsLevelOnFirstObservationWithoutCrossing(t *testing.T) {
	pct := 50.0
	cfg := models.LevelsConfig{
		Mode:   models.LevelsModeSell,
		Levels: []models.Level{{ID: "l1", Type: models.LevelStopLoss, Price: 90, SOLPercentage: &pct}},
	}
	store := &fakeStore{strategy: newStrategy(models.KindLevels, cfg)}
	swap := &fakeSwap{result: &models.SwapResult{Signature: "sig1"}}

	w, err := NewLevels("s1", "wallet", []byte("key"), "native", "usdc", "", 0, cfg, store, &fakePrices{price: 120}, &fakeBalances{native: 1_000_000_000}, swap)
	if err != nil {
		t.Fatalf("NewLevels: %v", err)
	}
	w.tick(context.Background())

	if swap.calls != 0 {
		t.Fatalf("expected no trigger above stop-loss price, got %d calls", swap.calls)
	}
}

func TestLevelsDeactivatesWhenAllLevelsPermanentlyDisabled(t *testing.T) {
	pct := 50.0
	cfg := models.LevelsConfig{
		Mode: models.LevelsModeSell,
		Levels: []models.Level{{
			ID: "l1", Type: models.LevelStopLoss, Price: 90, SOLPercentage: &pct,
			ExecutedCount: 0,
		}},
		MaxRetriggers: 1,
	}
	store := &fakeStore{strategy: newStrategy(models.KindLevels, cfg)}
	swap := &fakeSwap{result: &models.SwapResult{Signature: "sig1"}}

	w, err := NewLevels("s1", "wallet", []byte("key"), "native", "usdc", "", 0, cfg, store, &fakePrices{price: 80}, &fakeBalances{native: 1_000_000_000}, swap)
	if err != nil {
		t.Fatalf("NewLevels: %v", err)
	}
	w.tick(context.Background())

	if store.activeCalls != 1 {
		t.Fatalf("expected strategy to auto-deactivate once all levels exhausted, got %d calls", store.activeCalls)
	}
}

// --- PairTrade ---

type fakeTrigger struct {
	row *TriggerRow
	err error
}

func (f *fakeTrigger) FetchTrigger(ctx context.Context, tokenAMint, tokenBMint string) (*TriggerRow, error) {
	return f.row, f.err
}

func TestPairTradeEstablishesInitialPosition(t *testing.T) {
	cfg := models.PairTradeConfig{TokenAMint: "mintA", TokenBMint: "mintB", AllocationPercentage: 50, MaxSlippage: 1}
	store := &fakeStore{strategy: newStrategy(models.KindPairTrade, cfg)}
	swap := &fakeSwap{result: &models.SwapResult{Signature: "sig1"}}
	trigger := &fakeTrigger{row: &TriggerRow{PreferredInitialToken: models.PairTokenB}}

	w, err := NewPairTrade("s1", "wallet", []byte("key"), "", 0, cfg, store, &fakeBalances{native: 1_000_000_000}, swap, trigger)
	if err != nil {
		t.Fatalf("NewPairTrade: %v", err)
	}
	w.tick(context.Background())

	if swap.calls != 1 {
		t.Fatalf("expected initial position swap, got %d calls", swap.calls)
	}
	var saved models.PairTradeConfig
	if err := json.Unmarshal(store.strategy.Config, &saved); err != nil {
		t.Fatalf("decoding persisted config: %v", err)
	}
	if !saved.PositionEstablished || saved.CurrentToken != models.PairTokenB {
		t.Fatalf("expected position established in token B, got %+v", saved)
	}
}

func TestPairTradeFlipsOnDirectionChange(t *testing.T) {
	cfg := models.PairTradeConfig{
		TokenAMint: "mintA", TokenBMint: "mintB", AllocationPercentage: 50, MaxSlippage: 1,
		CurrentToken: models.PairTokenA, PositionEstablished: true,
	}
	store := &fakeStore{strategy: newStrategy(models.KindPairTrade, cfg)}
	swap := &fakeSwap{result: &models.SwapResult{Signature: "sig1"}}
	balances := &fakeBalances{token: map[string]uint64{"mintA": 500_000_000}}
	trigger := &fakeTrigger{row: &TriggerRow{TriggerSwap: true, CurrentDirection: models.PairTokenB}}

	w, err := NewPairTrade("s1", "wallet", []byte("key"), "", 0, cfg, store, balances, swap, trigger)
	if err != nil {
		t.Fatalf("NewPairTrade: %v", err)
	}
	w.tick(context.Background())

	if swap.calls != 1 {
		t.Fatalf("expected flip swap, got %d calls", swap.calls)
	}
	var saved models.PairTradeConfig
	if err := json.Unmarshal(store.strategy.Config, &saved); err != nil {
		t.Fatalf("decoding persisted config: %v", err)
	}
	if saved.CurrentToken != models.PairTokenB {
		t.Fatalf("expected flip to token B, got %s", saved.CurrentToken)
	}
}

func TestPairTradeSingleFlightGuardSkipsConcurrentTick(t *testing.T) {
	cfg := models.PairTradeConfig{TokenAMint: "mintA", TokenBMint: "mintB", AllocationPercentage: 50, MaxSlippage: 1}
	store := &fakeStore{strategy: newStrategy(models.KindPairTrade, cfg)}
	swap := &fakeSwap{result: &models.SwapResult{Signature: "sig1"}}
	trigger := &fakeTrigger{row: &TriggerRow{PreferredInitialToken: models.PairTokenA}}

	w, err := NewPairTrade("s1", "wallet", []byte("key"), "", 0, cfg, store, &fakeBalances{native: 1_000_000_000}, swap, trigger)
	if err != nil {
		t.Fatalf("NewPairTrade: %v", err)
	}
	if !w.tryLockSwap() {
		t.Fatal("expected first lock to succeed")
	}
	w.tick(context.Background())
	if swap.calls != 0 {
		t.Fatalf("expected tick to skip while locked, got %d calls", swap.calls)
	}
}

// --- PerpPosition ---

type fakeVenue struct {
	markPrice     float64
	position      *models.PerpPosition
	freeCollat    float64
	openCalls     int
	closeCalls    int
	depositCalls  int
	openErr       error
}

func (v *fakeVenue) MarkPrice(ctx context.Context, marketIndex int) (float64, error) {
	return v.markPrice, nil
}

func (v *fakeVenue) CurrentPosition(ctx context.Context, walletPubkey string, marketIndex int) (*models.PerpPosition, error) {
	return v.position, nil
}

func (v *fakeVenue) FreeCollateral(ctx context.Context, walletPubkey string) (float64, error) {
	return v.freeCollat, nil
}

func (v *fakeVenue) DepositCollateral(ctx context.Context, keypair []byte, amount float64) error {
	v.depositCalls++
	return nil
}

func (v *fakeVenue) OpenPosition(ctx context.Context, keypair []byte, marketIndex int, direction models.PerpDirection, sizeBaseUnits float64) (string, error) {
	v.openCalls++
	if v.openErr != nil {
		return "", v.openErr
	}
	return "open-sig", nil
}

func (v *fakeVenue) ClosePosition(ctx context.Context, keypair []byte, marketIndex int) (string, error) {
	v.closeCalls++
	return "close-sig", nil
}

func TestPerpPositionOpensWhenEntryConditionMet(t *testing.T) {
	cfg := models.PerpPositionConfig{
		MarketIndex: 0, Direction: models.PerpLong, AllocationPercentage: 50,
		EntryPrice: 100, ExitPrice: 150, Leverage: 2,
	}
	store := &fakeStore{strategy: newStrategy(models.KindPerpPosition, cfg)}
	venue := &fakeVenue{markPrice: 95, freeCollat: 1000}

	w, err := NewPerpPosition("s1", "wallet", []byte("key"), cfg, store, venue, eventbus.New())
	if err != nil {
		t.Fatalf("NewPerpPosition: %v", err)
	}
	w.tick(context.Background())

	if venue.openCalls != 1 {
		t.Fatalf("expected position to open, got %d calls", venue.openCalls)
	}
	var saved models.PerpPositionConfig
	if err := json.Unmarshal(store.strategy.Config, &saved); err != nil {
		t.Fatalf("decoding persisted config: %v", err)
	}
	if !saved.IsPositionOpen {
		t.Fatal("expected config to record position open")
	}
	if len(saved.OrderHistory) != 1 {
		t.Fatalf("expected order history entry to persist, got %d", len(saved.OrderHistory))
	}
}

func TestPerpPositionClosesOnStopLoss(t *testing.T) {
	stop := 90.0
	cfg := models.PerpPositionConfig{
		MarketIndex: 0, Direction: models.PerpLong, AllocationPercentage: 50,
		EntryPrice: 100, ExitPrice: 150, Leverage: 2, StopLoss: &stop,
		IsPositionOpen: true, CurrentPosition: &models.PerpPosition{MarketIndex: 0},
	}
	store := &fakeStore{strategy: newStrategy(models.KindPerpPosition, cfg)}
	venue := &fakeVenue{markPrice: 85, freeCollat: 1000, position: &models.PerpPosition{MarketIndex: 0}}

	w, err := NewPerpPosition("s1", "wallet", []byte("key"), cfg, store, venue, eventbus.New())
	if err != nil {
		t.Fatalf("NewPerpPosition: %v", err)
	}
	w.tick(context.Background())

	if venue.closeCalls != 1 {
		t.Fatalf("expected position to close on stop-loss breach, got %d calls", venue.closeCalls)
	}
}

func TestPerpPositionAdoptsVenueStateOnDisagreement(t *testing.T) {
	cfg := models.PerpPositionConfig{
		MarketIndex: 0, Direction: models.PerpLong, AllocationPercentage: 50,
		EntryPrice: 100, ExitPrice: 150, Leverage: 2, IsPositionOpen: true,
	}
	store := &fakeStore{strategy: newStrategy(models.KindPerpPosition, cfg)}
	// venue reports no open position even though local state believes one is open.
	venue := &fakeVenue{markPrice: 120, freeCollat: 1000, position: nil}

	w, err := NewPerpPosition("s1", "wallet", []byte("key"), cfg, store, venue, eventbus.New())
	if err != nil {
		t.Fatalf("NewPerpPosition: %v", err)
	}
	w.bootstrapped = true // skip collateral bootstrap for this assertion
	w.tick(context.Background())

	if store.positionCalls != 1 {
		t.Fatalf("expected position sync disagreement to persist once, got %d calls", store.positionCalls)
	}
}

// --- WalletMonitor ---

type fakeSubscriber struct {
	address  string
	fn       func(LogEvent)
	removed  bool
}

func (s *fakeSubscriber) OnLogs(address string, fn func(LogEvent)) uint64 {
	s.address = address
	s.fn = fn
	return 1
}

func (s *fakeSubscriber) RemoveOnLogs(handle uint64) {
	s.removed = true
}

type fakeParser struct {
	amount, preBalance float64
	ok                 bool
	err                error
}

func (p *fakeParser) ParseSwap(ctx context.Context, signature, watchedWallet string) (float64, float64, bool, error) {
	return p.amount, p.preBalance, p.ok, p.err
}

func TestWalletMonitorMirrorsProportionally(t *testing.T) {
	cfg := models.WalletMonitorConfig{WatchedWallet: "watched", Percentage: 100}
	store := &fakeStore{strategy: newStrategy(models.KindWalletMonitor, cfg)}
	swap := &fakeSwap{result: &models.SwapResult{Signature: "mirror-sig"}}
	chain := &fakeBalances{native: 1_000_000_000}
	parser := &fakeParser{amount: 10, preBalance: 100, ok: true}
	sub := &fakeSubscriber{}

	w := NewWalletMonitor("s1", "wallet", []byte("key"), "native", store, chain, swap, sub, parser)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	// Run subscribes synchronously before blocking, but do it safely: poll briefly.
	for i := 0; i < 1000 && sub.fn == nil; i++ {
		time.Sleep(time.Millisecond)
	}
	if sub.fn == nil {
		t.Fatal("expected Run to register a log subscription")
	}
	sub.fn(LogEvent{Signature: "sig-a"})
	cancel()
	<-done

	if swap.calls != 1 {
		t.Fatalf("expected one mirrored swap, got %d calls", swap.calls)
	}
	if !sub.removed {
		t.Fatal("expected Run to unsubscribe on exit")
	}
}

func TestWalletMonitorDedupesRepeatedSignature(t *testing.T) {
	cfg := models.WalletMonitorConfig{WatchedWallet: "watched", Percentage: 100}
	store := &fakeStore{strategy: newStrategy(models.KindWalletMonitor, cfg)}
	swap := &fakeSwap{result: &models.SwapResult{Signature: "mirror-sig"}}
	parser := &fakeParser{amount: 10, preBalance: 100, ok: true}

	w := NewWalletMonitor("s1", "wallet", []byte("key"), "native", store, &fakeBalances{native: 1_000_000_000}, swap, &fakeSubscriber{}, parser)

	w.onLog(context.Background(), &cfg, LogEvent{Signature: "dup-sig"})
	w.onLog(context.Background(), &cfg, LogEvent{Signature: "dup-sig"})

	if swap.calls != 1 {
		t.Fatalf("expected duplicate signature to be suppressed, got %d calls", swap.calls)
	}
}

func TestWalletMonitorEvictsOldEntriesBeyondCap(t *testing.T) {
	w := &WalletMonitor{processing: make(map[string]bool)}
	for i := 0; i < maxRecentTransactions+10; i++ {
		w.recent = append(w.recent, recentEntry{signature: uuid.New().String(), seenAt: time.Now()})
	}
	w.mu.Lock()
	w.evictLocked()
	w.mu.Unlock()

	if len(w.recent) != maxRecentTransactions {
		t.Fatalf("expected eviction to cap at %d entries, got %d", maxRecentTransactions, len(w.recent))
	}
}
