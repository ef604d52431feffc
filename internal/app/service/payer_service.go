package service

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"x402_gateway/internal/app/port"
	"x402_gateway/internal/domain/entity"
	"x402_gateway/internal/infrastructure/configloader"
	"x402_gateway/internal/infrastructure/httpclient"
	"x402_gateway/internal/infrastructure/signer"
	"x402_gateway/internal/pkg/utils"
)

const defaultPayerRequestsPerSecond = 5

// payerServiceImpl implements port.PayerService.
type payerServiceImpl struct {
	walletProvider        port.WalletProvider
	networkProvider       port.NetworkDefinitionProvider
	clientProvider        port.BlockchainClientProvider
	resourceClient        httpclient.ResourceClient
	pricingService        port.PricingService
	logger                port.Logger
	cfg                   *configloader.Config
	maxConcurrentRequests int
	requestLimiter        *rate.Limiter
	newSigner             func(privateKeyHex string) (port.PaymentSigner, error)

	mu              sync.Mutex
	failedResources map[string]bool
	paidNetworks    map[entity.SupportedNetwork]struct{}
}

// NewPayerService creates a new instance of payerServiceImpl. The blockchain
// client provider is optional; without it balance checks are skipped.
func NewPayerService(
	wp port.WalletProvider,
	np port.NetworkDefinitionProvider,
	cp port.BlockchainClientProvider,
	rc httpclient.ResourceClient,
	ps port.PricingService,
	l port.Logger,
	config *configloader.Config,
) port.PayerService {
	maxConcurrent := config.Payer.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	requestsPerSecond := config.Payer.RequestsPerSecond
	if requestsPerSecond <= 0 {
		requestsPerSecond = defaultPayerRequestsPerSecond
	}
	burst := config.Payer.BurstLimit
	if burst <= 0 {
		burst = requestsPerSecond
	}

	return &payerServiceImpl{
		walletProvider:        wp,
		networkProvider:       np,
		clientProvider:        cp,
		resourceClient:        rc,
		pricingService:        ps,
		logger:                l,
		cfg:                   config,
		maxConcurrentRequests: maxConcurrent,
		requestLimiter:        rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		newSigner:             signer.NewExactSigner,
		failedResources:       make(map[string]bool),
		paidNetworks:          make(map[entity.SupportedNetwork]struct{}),
	}
}

// PayAllResources runs the payment flow for every request item with every
// wallet defined by the WalletProvider.
func (s *payerServiceImpl) PayAllResources(ctx context.Context, items []entity.PaymentRequestItem) ([]entity.PaymentSummary, []entity.PaymentError) {
	s.logger.Debug("Paying for all configured resources", "item_count", len(items))

	wallets, err := s.walletProvider.GetWallets()
	if err != nil {
		s.logger.Error("Failed to get wallets", "error", err)
		return nil, []entity.PaymentError{{Message: fmt.Sprintf("failed to load wallets: %v", err)}}
	}
	if len(items) == 0 {
		s.logger.Warn("No payment request items configured, nothing to do.")
		return []entity.PaymentSummary{}, nil
	}

	var allPaymentErrors []entity.PaymentError
	var errorMu sync.Mutex

	signers := make(map[string]port.PaymentSigner, len(wallets))
	for _, wallet := range wallets {
		walletSigner, err := s.newSigner(wallet.PrivateKeyHex)
		if err != nil {
			s.logger.Error("Failed to build signer for wallet", "address", wallet.Address, "error", err)
			allPaymentErrors = append(allPaymentErrors, entity.PaymentError{
				PayerAddress: wallet.Address,
				Message:      fmt.Sprintf("failed to build signer: %v", err),
			})
			continue
		}
		signers[wallet.Address] = walletSigner
	}

	type paymentResult struct {
		payer   string
		receipt entity.PaymentReceipt
	}
	results := make(chan paymentResult, len(signers)*len(items))

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrentRequests)

	for address, walletSigner := range signers {
		for _, item := range items {
			g.Go(func() error {
				receipt, payErr := s.payForResource(groupCtx, walletSigner, item)
				if payErr != nil {
					errorMu.Lock()
					allPaymentErrors = append(allPaymentErrors, *payErr)
					errorMu.Unlock()

					s.mu.Lock()
					s.failedResources[item.Resource] = true
					s.mu.Unlock()
					return nil
				}
				results <- paymentResult{payer: address, receipt: *receipt}
				return nil
			})
		}
	}

	_ = g.Wait()
	close(results)

	receiptsByPayer := make(map[string][]entity.PaymentReceipt)
	receiptCount := 0
	for result := range results {
		receiptsByPayer[result.payer] = append(receiptsByPayer[result.payer], result.receipt)
		receiptCount++
	}

	summaries := make([]entity.PaymentSummary, 0, len(signers))
	for _, wallet := range wallets {
		if _, ok := signers[wallet.Address]; !ok {
			continue
		}
		summaries = append(summaries, buildPaymentSummary(wallet.Address, receiptsByPayer[wallet.Address]))
	}

	s.logger.Info("Finished paying for resources",
		"wallet_count", len(signers), "receipt_count", receiptCount, "error_count", len(allPaymentErrors))
	return summaries, allPaymentErrors
}

// payForResource executes the request/402/sign/retry flow for one wallet and
// one resource.
func (s *payerServiceImpl) payForResource(ctx context.Context, walletSigner port.PaymentSigner, item entity.PaymentRequestItem) (*entity.PaymentReceipt, *entity.PaymentError) {
	payerAddress := walletSigner.Address()
	s.logger.Debug("Requesting resource", "payer", payerAddress, "resource", item.Resource, "request_id", item.ID)

	headers := make(map[string]string)
	if item.Type == entity.BudgetPriceRequest && item.Budget != "" {
		headers[entity.BudgetHeader] = item.Budget
	}

	if err := s.requestLimiter.Wait(ctx); err != nil {
		return nil, s.paymentError(payerAddress, item, "", fmt.Sprintf("rate limiter interrupted: %v", err))
	}
	initial, err := s.resourceClient.Request(ctx, item.Method, item.Resource, headers)
	if err != nil {
		return nil, s.paymentError(payerAddress, item, "", fmt.Sprintf("initial request failed: %v", err))
	}

	if initial.StatusCode != http.StatusPaymentRequired {
		if initial.StatusCode >= 200 && initial.StatusCode < 300 {
			s.logger.Info("Resource did not require payment", "payer", payerAddress, "resource", item.Resource, "status", initial.StatusCode)
			return &entity.PaymentReceipt{
				PayerAddress: payerAddress,
				Resource:     item.Resource,
				StatusCode:   initial.StatusCode,
			}, nil
		}
		return nil, s.paymentError(payerAddress, item, "", fmt.Sprintf("unexpected status %d from resource", initial.StatusCode))
	}

	if initial.PaymentRequired == nil || len(initial.PaymentRequired.Accepts) == 0 {
		return nil, s.paymentError(payerAddress, item, "", "402 response carried no payment requirements")
	}

	selected, networkDefinition, quotedAmount, err := s.selectRequirement(initial.PaymentRequired.Accepts, item)
	if err != nil {
		return nil, s.paymentError(payerAddress, item, "", err.Error())
	}

	if err := s.checkBalance(ctx, networkDefinition, payerAddress, quotedAmount); err != nil {
		return nil, s.paymentError(payerAddress, item, string(networkDefinition.Network), err.Error())
	}

	payload, err := walletSigner.SignPayment(*selected, networkDefinition)
	if err != nil {
		return nil, s.paymentError(payerAddress, item, string(networkDefinition.Network), fmt.Sprintf("failed to sign payment: %v", err))
	}
	paymentHeader, err := payload.EncodeHeader()
	if err != nil {
		return nil, s.paymentError(payerAddress, item, string(networkDefinition.Network), fmt.Sprintf("failed to encode payment header: %v", err))
	}
	headers[entity.PaymentHeader] = paymentHeader

	if err := s.requestLimiter.Wait(ctx); err != nil {
		return nil, s.paymentError(payerAddress, item, string(networkDefinition.Network), fmt.Sprintf("rate limiter interrupted: %v", err))
	}
	paid, err := s.resourceClient.Request(ctx, item.Method, item.Resource, headers)
	if err != nil {
		return nil, s.paymentError(payerAddress, item, string(networkDefinition.Network), fmt.Sprintf("paid request failed: %v", err))
	}

	if paid.StatusCode == http.StatusPaymentRequired {
		reason := "payment rejected by resource server"
		if paid.PaymentRequired != nil && paid.PaymentRequired.Error != "" {
			reason = paid.PaymentRequired.Error
		}
		s.logger.Error("Payment was rejected", "payer", payerAddress, "resource", item.Resource, "reason", reason)
		return nil, &entity.PaymentError{
			PayerAddress: payerAddress,
			Resource:     item.Resource,
			Network:      string(networkDefinition.Network),
			Scheme:       string(entity.SchemeExact),
			StatusCode:   paid.StatusCode,
			Message:      reason,
		}
	}
	if paid.StatusCode < 200 || paid.StatusCode >= 300 {
		return nil, s.paymentError(payerAddress, item, string(networkDefinition.Network), fmt.Sprintf("unexpected status %d after payment", paid.StatusCode))
	}

	receipt := &entity.PaymentReceipt{
		PayerAddress: payerAddress,
		Resource:     item.Resource,
		Network:      string(networkDefinition.Network),
		ChainID:      strconv.FormatUint(networkDefinition.ChainID, 10),
		AssetAddress: selected.Asset,
		AssetSymbol:  networkDefinition.USDC.Symbol,
		Decimals:     networkDefinition.USDC.Decimals,
		Amount:       quotedAmount,
		StatusCode:   paid.StatusCode,
	}
	if formatted, err := utils.FormatBigInt(quotedAmount, networkDefinition.USDC.Decimals); err == nil {
		receipt.FormattedAmount = formatted
	}
	if paid.Settlement != nil {
		receipt.Transaction = paid.Settlement.Transaction
		if paid.Settlement.Payer != "" && !strings.EqualFold(paid.Settlement.Payer, payerAddress) {
			s.logger.Warn("Settlement payer does not match signer", "expected", payerAddress, "reported", paid.Settlement.Payer)
		}
	} else {
		s.logger.Warn("Paid response carried no settlement header", "resource", item.Resource)
	}

	s.mu.Lock()
	s.paidNetworks[networkDefinition.Network] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("Paid for resource",
		"payer", payerAddress,
		"resource", item.Resource,
		"network", receipt.Network,
		"amount", receipt.FormattedAmount,
		"asset", receipt.AssetSymbol,
		"transaction", receipt.Transaction)
	return receipt, nil
}

// selectRequirement picks the first requirement the payer can satisfy: exact
// scheme, a supported network, the network's known payment asset, and a quote
// within the configured cap.
func (s *payerServiceImpl) selectRequirement(accepts []entity.PaymentRequirements, item entity.PaymentRequestItem) (*entity.PaymentRequirements, entity.NetworkDefinition, *big.Int, error) {
	maxMoney := utils.FirstNonEmpty(item.MaxAmount, s.cfg.Payer.MaxPaymentAmount)

	var lastReason error
	for i := range accepts {
		requirement := accepts[i]
		if requirement.Scheme != entity.SchemeExact {
			lastReason = fmt.Errorf("unsupported scheme: %s", requirement.Scheme)
			continue
		}

		networkDefinition, err := s.networkProvider.GetNetworkDefinitionByName(requirement.Network)
		if err != nil {
			lastReason = err
			continue
		}
		if !strings.EqualFold(requirement.Asset, networkDefinition.USDC.Address) {
			lastReason = fmt.Errorf("unknown payment asset %s on network %s", requirement.Asset, networkDefinition.Network)
			continue
		}

		quotedAmount, err := utils.ParseAtomicAmount(requirement.MaxAmountRequired)
		if err != nil {
			lastReason = fmt.Errorf("invalid maxAmountRequired %q: %w", requirement.MaxAmountRequired, err)
			continue
		}
		maxAtomic, err := s.pricingService.AtomicAmount(maxMoney, networkDefinition.USDC.Decimals)
		if err != nil {
			lastReason = fmt.Errorf("invalid payment cap %q: %w", maxMoney, err)
			continue
		}
		if quotedAmount.Cmp(maxAtomic) > 0 {
			lastReason = fmt.Errorf("quoted amount %s exceeds payment cap %s atomic units", requirement.MaxAmountRequired, maxAtomic.String())
			continue
		}

		return &requirement, networkDefinition, quotedAmount, nil
	}

	if lastReason == nil {
		lastReason = fmt.Errorf("402 response carried no payment requirements")
	}
	return nil, entity.NetworkDefinition{}, nil, fmt.Errorf("no acceptable payment requirement: %w", lastReason)
}

// checkBalance is a best-effort pre-flight: an unreachable RPC never blocks a
// payment, a confirmed insufficient balance does.
func (s *payerServiceImpl) checkBalance(ctx context.Context, networkDefinition entity.NetworkDefinition, payerAddress string, required *big.Int) error {
	if s.clientProvider == nil {
		return nil
	}

	chainClient, err := s.clientProvider.GetClient(networkDefinition)
	if err != nil {
		s.logger.Warn("Skipping balance check, no chain client", "network", networkDefinition.Network, "error", err)
		return nil
	}

	balances, err := chainClient.AssetBalances(ctx, networkDefinition.USDC, []string{payerAddress})
	if err != nil || len(balances) == 0 {
		s.logger.Warn("Balance check failed, proceeding with payment",
			"payer", payerAddress, "network", networkDefinition.Network, "error", err)
		return nil
	}

	balance := balances[0]
	if balance.Error != nil || balance.Amount == nil {
		s.logger.Warn("Balance check returned no amount, proceeding with payment",
			"payer", payerAddress, "network", networkDefinition.Network, "error", balance.Error)
		return nil
	}
	if balance.Amount.Cmp(required) < 0 {
		return fmt.Errorf("insufficient %s balance on %s: have %s, need %s atomic units",
			networkDefinition.USDC.Symbol, networkDefinition.Network, balance.Amount.String(), required.String())
	}
	return nil
}

// FetchAssetBalances reads the payment asset balances of all wallets on the
// networks touched by the last run. The chain ID of every RPC endpoint is
// verified before it is trusted.
func (s *payerServiceImpl) FetchAssetBalances(ctx context.Context) ([]entity.AssetBalance, error) {
	if s.clientProvider == nil {
		return nil, fmt.Errorf("no blockchain client provider configured")
	}

	wallets, err := s.walletProvider.GetWallets()
	if err != nil {
		return nil, fmt.Errorf("failed to load wallets: %w", err)
	}
	addresses := make([]string, 0, len(wallets))
	for _, wallet := range wallets {
		addresses = append(addresses, wallet.Address)
	}

	var balances []entity.AssetBalance
	for _, network := range s.networksToReport() {
		networkDefinition, err := s.networkProvider.GetNetworkDefinitionByName(network.String())
		if err != nil {
			s.logger.Error("Unknown network in balance report", "network", network, "error", err)
			continue
		}

		chainClient, err := s.clientProvider.GetClient(networkDefinition)
		if err != nil {
			s.logger.Error("Failed to get chain client for balance report", "network", network, "error", err)
			continue
		}
		if err := chainClient.VerifyChainID(ctx); err != nil {
			s.logger.Warn("Chain ID verification failed, skipping network in report", "network", network, "error", err)
			continue
		}

		asset := networkDefinition.USDC
		if meta, err := chainClient.AssetMeta(ctx, asset.Address); err != nil {
			s.logger.Warn("Failed to read on-chain asset metadata", "network", network, "asset", asset.Address, "error", err)
		} else {
			if meta.Decimals != asset.Decimals {
				s.logger.Warn("On-chain asset decimals differ from registry",
					"network", network, "asset", asset.Address, "registry", asset.Decimals, "onchain", meta.Decimals)
				asset.Decimals = meta.Decimals
			}
			asset.Symbol = utils.FirstNonEmpty(meta.Symbol, asset.Symbol)
		}

		networkBalances, err := chainClient.AssetBalances(ctx, asset, addresses)
		if err != nil {
			s.logger.Error("Failed to fetch asset balances", "network", network, "error", err)
			continue
		}
		balances = append(balances, networkBalances...)
	}

	return balances, nil
}

// GetFailedResources returns resource URLs that failed during the last run.
func (s *payerServiceImpl) GetFailedResources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	failed := make([]string, 0, len(s.failedResources))
	for resource, failedStatus := range s.failedResources {
		if failedStatus {
			failed = append(failed, resource)
		}
	}
	return failed
}

func (s *payerServiceImpl) networksToReport() []entity.SupportedNetwork {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.paidNetworks) > 0 {
		networks := make([]entity.SupportedNetwork, 0, len(s.paidNetworks))
		for network := range s.paidNetworks {
			networks = append(networks, network)
		}
		return networks
	}

	if network, err := entity.NormalizeNetwork(s.cfg.Payment.Network); err == nil {
		return []entity.SupportedNetwork{network}
	}
	return nil
}

func (s *payerServiceImpl) paymentError(payerAddress string, item entity.PaymentRequestItem, network, message string) *entity.PaymentError {
	s.logger.Error("Payment failed", "payer", payerAddress, "resource", item.Resource, "request_id", item.ID, "error", message)
	return &entity.PaymentError{
		PayerAddress: payerAddress,
		Resource:     item.Resource,
		Network:      network,
		Scheme:       string(entity.SchemeExact),
		Message:      message,
	}
}

func buildPaymentSummary(payerAddress string, receipts []entity.PaymentReceipt) entity.PaymentSummary {
	summary := entity.PaymentSummary{
		PayerAddress:      payerAddress,
		ReceiptsByNetwork: make(map[string][]entity.PaymentReceipt),
		TotalsByAsset:     make(map[string]entity.ReceiptTotal),
	}

	for _, receipt := range receipts {
		summary.ReceiptsByNetwork[receipt.Network] = append(summary.ReceiptsByNetwork[receipt.Network], receipt)
		if receipt.Amount == nil {
			continue
		}

		total, ok := summary.TotalsByAsset[receipt.AssetSymbol]
		if !ok {
			total = entity.ReceiptTotal{AssetSymbol: receipt.AssetSymbol, Amount: new(big.Int)}
		}
		total.Amount = new(big.Int).Add(total.Amount, receipt.Amount)
		if formatted, err := utils.FormatBigInt(total.Amount, receipt.Decimals); err == nil {
			total.FormattedAmount = formatted
		}
		summary.TotalsByAsset[receipt.AssetSymbol] = total
	}

	return summary
}
