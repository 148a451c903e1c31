package balance

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"

	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/cache"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/config"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/observability"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/resilience"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/worker"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/units"
)

const balanceOfABI = `[
	{
		"inputs": [{"internalType": "address", "name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// displayPrecision is the number of fractional digits shown to users
const displayPrecision = 6

// ChainReader is the RPC surface needed for balance reads. ClientPool
// satisfies it.
type ChainReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	bind.ContractCaller
}

// Balance is one token position for an account
type Balance struct {
	Token   config.TokenInfo
	Amount  *big.Int
	Display string
}

// ServiceConfig wires a balance Service
type ServiceConfig struct {
	Reader  ChainReader
	Cache   cache.Cache
	Logger  *observability.Logger
	Metrics *observability.Metrics

	// TTL bounds how stale a cached balance may be served
	TTL time.Duration
	// Workers sizes the fan-out pool for multi-token reads
	Workers int
}

// Service reads token balances with per-account caching. Reads for the
// supported token set fan out concurrently and serve from cache within the
// TTL; new heads and account changes invalidate by prefix.
type Service struct {
	reader   ChainReader
	cache    cache.Cache
	tokenABI abi.ABI
	logger   *observability.Logger
	metrics  *observability.Metrics
	ttl      time.Duration
	workers  int
	retry    resilience.RetryConfig

	// group collapses concurrent reads of the same account/token pair
	// into one RPC call
	group singleflight.Group
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Reader == nil {
		return nil, fmt.Errorf("chain reader is required")
	}
	parsed, err := abi.JSON(strings.NewReader(balanceOfABI))
	if err != nil {
		return nil, fmt.Errorf("parsing ERC-20 ABI: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewLogger("info", "json")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = len(config.TokenRegistry)
	}
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 2
	retry.BaseDelay = 200 * time.Millisecond
	return &Service{
		reader:   cfg.Reader,
		cache:    cfg.Cache,
		tokenABI: parsed,
		logger:   logger,
		metrics:  cfg.Metrics,
		ttl:      ttl,
		workers:  workers,
		retry:    retry,
	}, nil
}

// Of returns the balance of a single token for account
func (s *Service) Of(ctx context.Context, account common.Address, token config.TokenInfo) (*Balance, error) {
	key := cacheKey(account, token.Symbol)

	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key); err == nil {
			if amount, ok := new(big.Int).SetString(raw, 10); ok {
				if s.metrics != nil {
					s.metrics.RecordBalanceRead(ctx, token.Symbol, true)
				}
				return s.newBalance(token, amount), nil
			}
		}
	}

	fetched, err, _ := s.group.Do(key, func() (interface{}, error) {
		amount, err := s.fetch(ctx, account, token)
		if err != nil {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.RecordBalanceRead(ctx, token.Symbol, false)
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, key, amount.String(), s.ttl); err != nil {
				s.logger.LogWarn(ctx, "caching balance failed", "key", key, "error", err)
			}
		}
		return amount, nil
	})
	if err != nil {
		return nil, err
	}
	return s.newBalance(token, fetched.(*big.Int)), nil
}

// All reads every supported token's balance for account concurrently.
// Results are sorted by symbol; a single failed read fails the batch.
func (s *Service) All(ctx context.Context, account common.Address) ([]Balance, error) {
	pool := worker.NewPool[*Balance](ctx, s.workers, len(config.TokenRegistry))
	defer pool.Close()

	jobs := make([]worker.Job[*Balance], 0, len(config.TokenRegistry))
	for _, token := range config.TokenRegistry {
		token := token
		jobs = append(jobs, worker.Job[*Balance]{
			ID: token.Symbol,
			Execute: func(ctx context.Context) (*Balance, error) {
				return s.Of(ctx, account, token)
			},
		})
	}

	results := pool.SubmitAndWait(jobs)
	balances := make([]Balance, 0, len(results))
	for _, res := range results {
		if res.Err != nil {
			return nil, fmt.Errorf("reading %s balance: %w", res.JobID, res.Err)
		}
		balances = append(balances, *res.Value)
	}
	sort.Slice(balances, func(i, j int) bool {
		return balances[i].Token.Symbol < balances[j].Token.Symbol
	})
	return balances, nil
}

// Invalidate drops every cached balance for account. Called on new heads
// and on account changes.
func (s *Service) Invalidate(ctx context.Context, account common.Address) {
	if s.cache == nil {
		return
	}
	prefix := "balance:" + strings.ToLower(account.Hex()) + ":"
	if err := s.cache.DeletePrefix(ctx, prefix); err != nil {
		s.logger.LogWarn(ctx, "balance invalidation failed", "account", account.Hex(), "error", err)
	}
}

// InvalidateAll drops every cached balance. Called once per new head since
// any account's balance may have moved in the block.
func (s *Service) InvalidateAll(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePrefix(ctx, "balance:"); err != nil {
		s.logger.LogWarn(ctx, "balance invalidation failed", "error", err)
	}
}

func (s *Service) fetch(ctx context.Context, account common.Address, token config.TokenInfo) (*big.Int, error) {
	return resilience.RetryWithResult(ctx, s.retry, func(ctx context.Context) (*big.Int, error) {
		if token.IsNative() {
			amount, err := s.reader.BalanceAt(ctx, account, nil)
			if err != nil {
				return nil, fmt.Errorf("reading native balance: %w", err)
			}
			return amount, nil
		}

		contract := bind.NewBoundContract(common.HexToAddress(token.Address), s.tokenABI, s.reader, nil, nil)
		var out []interface{}
		if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", account); err != nil {
			return nil, fmt.Errorf("reading %s balance: %w", token.Symbol, err)
		}
		amount, ok := out[0].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("unexpected balanceOf result type %T", out[0])
		}
		return amount, nil
	})
}

func (s *Service) newBalance(token config.TokenInfo, amount *big.Int) *Balance {
	return &Balance{
		Token:   token,
		Amount:  amount,
		Display: units.FromBaseUnits(amount, token.Decimals, displayPrecision),
	}
}

func cacheKey(account common.Address, symbol string) string {
	return "balance:" + strings.ToLower(account.Hex()) + ":" + symbol
}
