package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ksred/nft-auction-api/internal/auction"
	"github.com/ksred/nft-auction-api/internal/auth"
	"github.com/ksred/nft-auction-api/internal/chain"
	"github.com/ksred/nft-auction-api/internal/database"
	"github.com/ksred/nft-auction-api/internal/escrow"
	"github.com/ksred/nft-auction-api/internal/events"
	"github.com/ksred/nft-auction-api/internal/factory"
	"github.com/ksred/nft-auction-api/internal/oracle"
	"github.com/ksred/nft-auction-api/internal/types"
	"github.com/ksred/nft-auction-api/pkg/middleware"
)

const (
	numAuctions     = 5
	numBidders      = 3
	auctionDuration = 5 * time.Second
	serverAddress   = "http://localhost:8080"
	jwtSecret       = "simulation-secret-key"

	deployerKey    = "deployer"
	deployerSecret = "deployer-secret"

	nftContract = "simulated-nft"
	tokenKind   = "USDC"
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
	mu         sync.Mutex
}

func (rs *routeStats) addDuration(d time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

func (rs *routeStats) addFailure() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.failures++
}

// calculate computes min, max, mean, median, p95 and p99 durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the auction API
type simulationClient struct {
	baseURL string
	client  *http.Client
	tokens  map[string]string // clientID -> JWT
	stats   map[string]*routeStats
	mu      sync.Mutex
}

func newSimulationClient() *simulationClient {
	return &simulationClient{
		baseURL: serverAddress,
		client:  &http.Client{Timeout: 10 * time.Second},
		tokens:  make(map[string]string),
		stats: map[string]*routeStats{
			"auth":   {name: "Authentication"},
			"create": {name: "Create Auction"},
			"bid":    {name: "Place Bid"},
			"end":    {name: "End Auction"},
			"get":    {name: "Get Auction"},
			"ledger": {name: "Ledger Admin"},
			"oracle": {name: "Oracle Admin"},
		},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// call issues a request with the client's token, records latency stats, and
// decodes the standard response envelope into out when provided.
func (sc *simulationClient) call(statKey, method, path, clientID string, payload, out interface{}) error {
	stat := sc.stats[statKey]
	start := time.Now()
	defer func() {
		stat.addDuration(time.Since(start))
	}()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(encoded)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.New().String())
	if clientID != "" {
		sc.mu.Lock()
		token := sc.tokens[clientID]
		sc.mu.Unlock()
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		stat.addFailure()
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		stat.addFailure()
		return fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("path", path).Str("response", string(respBody)).Msg("API response")

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		stat.addFailure()
		return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	if !env.Success {
		stat.addFailure()
		code := ""
		message := string(respBody)
		if env.Error != nil {
			code = env.Error.Code
			message = env.Error.Message
		}
		return fmt.Errorf("%s %s failed (%s): %s", method, path, code, message)
	}

	if out != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

// authenticate obtains and caches a JWT for the client
func (sc *simulationClient) authenticate(clientID, secret string) error {
	var tokenResponse struct {
		Token string `json:"jwt_token"`
	}
	err := sc.call("auth", "POST", "/api/v1/auth/token", "", map[string]string{
		"api_key":    clientID,
		"api_secret": secret,
	}, &tokenResponse)
	if err != nil {
		return err
	}

	sc.mu.Lock()
	sc.tokens[clientID] = tokenResponse.Token
	sc.mu.Unlock()
	return nil
}

// seedWorld registers price feeds, posts initial readings, and funds all
// simulation participants on the ledger
func (sc *simulationClient) seedWorld(bidders []string) error {
	err := sc.call("oracle", "POST", "/api/v1/admin/price-feeds", deployerKey, map[string][]string{
		"asset_kinds":  {types.NativeAssetKind, tokenKind},
		"feed_sources": {"native-usd", "usdc-usd"},
	}, nil)
	if err != nil {
		return err
	}

	// Native at 2000.00, the token pegged at 1.00 (both at 8 feed decimals).
	rounds := map[string]string{
		types.NativeAssetKind: "200000000000",
		tokenKind:             "100000000",
	}
	for kind, answer := range rounds {
		err := sc.call("oracle", "POST", "/api/v1/admin/price-feeds/"+kind+"/rounds", deployerKey,
			map[string]string{"answer": answer}, nil)
		if err != nil {
			return err
		}
	}

	for _, bidder := range bidders {
		err := sc.call("ledger", "POST", "/api/v1/admin/ledger/native", deployerKey, map[string]interface{}{
			"address": bidder,
			"amount":  "1000",
		}, nil)
		if err != nil {
			return err
		}
		err = sc.call("ledger", "POST", "/api/v1/admin/ledger/tokens", deployerKey, map[string]interface{}{
			"address":    bidder,
			"asset_kind": tokenKind,
			"amount":     "1000000",
		}, nil)
		if err != nil {
			return err
		}
		err = sc.call("ledger", "POST", "/api/v1/ledger/approvals/token", bidder, map[string]interface{}{
			"spender":    escrow.VaultAddress,
			"asset_kind": tokenKind,
			"amount":     "1000000",
		}, nil)
		if err != nil {
			return err
		}
	}
	return nil
}

// runAuctionScenario mints an asset for the seller, creates an auction, has
// all bidders compete across asset kinds, settles it, and verifies custody.
func (sc *simulationClient) runAuctionScenario(workerID int, seller string, bidders []string) (string, error) {
	tokenID := uint64(workerID)

	err := sc.call("ledger", "POST", "/api/v1/admin/ledger/nfts", deployerKey, map[string]interface{}{
		"contract": nftContract,
		"token_id": tokenID,
		"owner":    seller,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to mint asset: %w", err)
	}

	err = sc.call("ledger", "POST", "/api/v1/ledger/approvals/nft", seller, map[string]interface{}{
		"contract": nftContract,
		"token_id": tokenID,
		"approved": escrow.VaultAddress,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to approve escrow: %w", err)
	}

	var created struct {
		AuctionID string `json:"auction_id"`
	}
	err = sc.call("create", "POST", "/api/v1/auctions", seller, map[string]interface{}{
		"duration_seconds": int64(auctionDuration / time.Second),
		"reserve_price":    "10",
		"asset_contract":   nftContract,
		"asset_id":         tokenID,
	}, &created)
	if err != nil {
		return "", fmt.Errorf("failed to create auction: %w", err)
	}

	log.Info().
		Int("worker_id", workerID).
		Str("auction_id", created.AuctionID).
		Msg("Auction created")

	// Bidders alternate between native and token bids with rising values.
	// Native is worth 2000 per unit, the token 1 per unit.
	for round := 0; round < 2; round++ {
		for i, bidder := range bidders {
			var payload map[string]interface{}
			if (round+i)%2 == 0 {
				amount := fmt.Sprintf("%.4f", 0.01*float64(1+round*len(bidders)+i)+0.001*rand.Float64())
				payload = map[string]interface{}{
					"asset_kind":     types.NativeAssetKind,
					"amount":         amount,
					"attached_value": amount,
				}
			} else {
				payload = map[string]interface{}{
					"asset_kind": tokenKind,
					"amount":     fmt.Sprintf("%d", 25*(1+round*len(bidders)+i)),
				}
			}

			err := sc.call("bid", "POST", "/api/v1/auctions/"+created.AuctionID+"/bids", bidder, payload, nil)
			if err != nil {
				// Low bids are rejected by design once the price has moved on.
				log.Warn().
					Err(err).
					Str("bidder", bidder).
					Str("auction_id", created.AuctionID).
					Msg("Bid rejected")
			}
		}
	}

	// Wait for the auction to end, then settle.
	time.Sleep(auctionDuration + time.Second)
	err = sc.call("end", "POST", "/api/v1/auctions/"+created.AuctionID+"/end", "", nil, nil)
	if err != nil {
		return created.AuctionID, fmt.Errorf("failed to settle auction: %w", err)
	}

	var snapshot auction.Snapshot
	if err := sc.call("get", "GET", "/api/v1/auctions/"+created.AuctionID, "", nil, &snapshot); err != nil {
		return created.AuctionID, err
	}

	var assetOwner struct {
		Owner string `json:"owner"`
	}
	ownerPath := fmt.Sprintf("/api/v1/ledger/nfts/%s/%d", nftContract, tokenID)
	if err := sc.call("get", "GET", ownerPath, "", nil, &assetOwner); err != nil {
		return created.AuctionID, err
	}

	expectedOwner := seller
	if snapshot.HighestBidder != "" {
		expectedOwner = snapshot.HighestBidder
	}
	if assetOwner.Owner != expectedOwner {
		return created.AuctionID, fmt.Errorf("asset with wrong owner after settlement: got %s, want %s",
			assetOwner.Owner, expectedOwner)
	}

	log.Info().
		Str("auction_id", created.AuctionID).
		Str("winner", snapshot.HighestBidder).
		Str("highest_bid", snapshot.HighestBid.String()).
		Str("asset_owner", assetOwner.Owner).
		Msg("Auction settled and verified")

	return created.AuctionID, nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the auction simulation
// It starts a local API server and drives concurrent auction lifecycles
func main() {
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	simClient := newSimulationClient()

	sellers := make([]string, numAuctions)
	for i := range sellers {
		sellers[i] = fmt.Sprintf("SELLER_%d", i)
	}
	bidders := make([]string, numBidders)
	for i := range bidders {
		bidders[i] = fmt.Sprintf("BIDDER_%d", i)
	}

	if err := simClient.authenticate(deployerKey, deployerSecret); err != nil {
		log.Fatal().Err(err).Msg("Failed to authenticate deployer")
	}
	for _, clientID := range append(append([]string{}, sellers...), bidders...) {
		if err := simClient.authenticate(clientID, clientID+"-secret"); err != nil {
			log.Fatal().Err(err).Str("client_id", clientID).Msg("Failed to authenticate client")
		}
	}

	if err := simClient.seedWorld(bidders); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed simulation world")
	}

	log.Info().Int("auctions", numAuctions).Int("bidders", numBidders).Msg("Starting simulation")
	startTime := time.Now()

	var wg sync.WaitGroup
	results := make(chan error, numAuctions)
	for i := 0; i < numAuctions; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			_, err := simClient.runAuctionScenario(workerID, sellers[workerID], bidders)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	settled, failed := 0, 0
	for err := range results {
		if err != nil {
			failed++
			log.Error().Err(err).Msg("Auction scenario failed")
			continue
		}
		settled++
	}

	duration := time.Since(startTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("AUCTION SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf(`
Auctions:   %d
Settled:    %d
Failed:     %d
Duration:   %v
`, numAuctions, settled, failed, duration.Round(time.Millisecond))

	successRate := float64(settled) / float64(numAuctions) * 100
	log.Info().
		Float64("success_rate", successRate).
		Int("auctions", numAuctions).
		Int("settled", settled).
		Dur("duration", duration).
		Msg("Simulation completed")

	simClient.printPerformanceStats()
}

// startServer initializes and starts the auction API server
// Sets up all required services, handlers and routes
func startServer() error {
	db, err := database.NewDatabase("simulation.db")
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	authService := auth.NewService(jwtSecret)
	authService.RegisterAdminCredentials(deployerKey, deployerSecret)
	for i := 0; i < numAuctions; i++ {
		clientID := fmt.Sprintf("SELLER_%d", i)
		authService.RegisterAPICredentials(clientID, clientID+"-secret")
	}
	for i := 0; i < numBidders; i++ {
		clientID := fmt.Sprintf("BIDDER_%d", i)
		authService.RegisterAPICredentials(clientID, clientID+"-secret")
	}

	eventService := events.NewService(db)
	ledger := chain.NewLedger(db)
	escrowService := escrow.NewService(db)
	oracleService := oracle.NewService(db, time.Hour)
	auctionService := auction.NewService(db, escrowService, oracleService, eventService)
	factoryService := factory.NewService(db, escrowService, oracleService, auctionService, eventService)

	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	authHandlers := auth.NewGinHandlers(authService)
	auctionHandlers := auction.NewGinHandlers(auctionService, eventService)
	factoryHandlers := factory.NewGinHandlers(factoryService)
	chainHandlers := chain.NewGinHandlers(ledger)

	setupRoutes(router, authHandlers, auctionHandlers, factoryHandlers, chainHandlers)

	return router.Run(":8080")
}

// setupRoutes configures all API endpoints and their handlers
// Groups routes by functionality and applies appropriate middleware
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	auctionHandlers *auction.GinHandlers,
	factoryHandlers *factory.GinHandlers,
	chainHandlers *chain.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		auctions := v1.Group("/auctions")
		{
			auctions.GET("/:auction_id", auctionHandlers.GetAuctionHandler())
			auctions.GET("/:auction_id/bids", auctionHandlers.GetBidsHandler())
			auctions.GET("/:auction_id/events", auctionHandlers.GetEventsHandler())
			auctions.POST("/:auction_id/end", factoryHandlers.EndAuctionHandler())

			authed := auctions.Group("")
			authed.Use(middleware.JWTAuth(jwtSecret))
			{
				authed.POST("", factoryHandlers.CreateAuctionHandler())
				authed.POST("/:auction_id/bids", auctionHandlers.PlaceBidHandler())
			}
		}

		ledgerGroup := v1.Group("/ledger")
		{
			ledgerGroup.GET("/accounts/:address", chainHandlers.GetAccountHandler())
			ledgerGroup.GET("/nfts/:contract/:token_id", chainHandlers.GetNFTHandler())

			approvals := ledgerGroup.Group("")
			approvals.Use(middleware.JWTAuth(jwtSecret))
			{
				approvals.POST("/approvals/nft", chainHandlers.ApproveNFTHandler())
				approvals.POST("/approvals/token", chainHandlers.ApproveTokenHandler())
			}
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.AdminAuth(jwtSecret))
		{
			admin.POST("/price-feeds", factoryHandlers.SetPriceFeedHandler())
			admin.POST("/price-feeds/:asset_kind/rounds", factoryHandlers.PostRoundHandler())
			admin.POST("/ledger/native", chainHandlers.SeedNativeHandler())
			admin.POST("/ledger/tokens", chainHandlers.MintTokenHandler())
			admin.POST("/ledger/nfts", chainHandlers.MintNFTHandler())
		}
	}
}
