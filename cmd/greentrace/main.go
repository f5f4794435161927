package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/greentrace/ledger/internal/client"
	"github.com/greentrace/ledger/internal/config"
	"github.com/greentrace/ledger/internal/labels"
	"github.com/greentrace/ledger/internal/models"
	"github.com/greentrace/ledger/internal/services"
	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "greentrace",
		Short: "GreenTrace - Supply-chain carbon provenance client",
		Long:  `Command line client for the GreenTrace carbon ledger. Registers participants and products, files logistics claims, and tracks products by their QR label.`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./greentrace.toml)")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(depositCmd())
	rootCmd.AddCommand(productCmd())
	rootCmd.AddCommand(logisticsCmd())
	rootCmd.AddCommand(trackCmd())
	rootCmd.AddCommand(budgetCmd())
	rootCmd.AddCommand(offsetsCmd())
	rootCmd.AddCommand(statusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return "greentrace.toml"
}

func loadConfig() (*config.CLIConfig, error) {
	cfg, err := config.LoadCLI(configPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config (run 'greentrace init' first): %w", err)
	}
	return cfg, nil
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new client account",
		Long:  `Create an API account on the ledger and save credentials to the local config file.`,
		RunE:  runInit,
	}

	cmd.Flags().String("email", "", "Account email (required)")
	cmd.Flags().String("password", "", "Account password (required)")
	cmd.Flags().String("api-url", "http://localhost:8080", "Ledger API URL")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")

	return cmd
}

func runInit(cmd *cobra.Command, args []string) error {
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")
	apiURL, _ := cmd.Flags().GetString("api-url")

	cfg := config.DefaultCLIConfig()
	cfg.API.URL = apiURL

	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	// Register with the ledger API
	api := client.New(&cfg.API)
	resp, err := api.RegisterAccount(email, password)
	if err != nil {
		return err
	}

	// Save credentials; the API key is only shown once by the server
	cfg.API.AccountID = resp.AccountID
	cfg.API.APIKey = resp.APIKey
	cfg.API.AuthToken = resp.Token

	if err := cfg.Save(configPath()); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("Account created successfully!\n")
	fmt.Printf("Account ID: %s\n", resp.AccountID)
	fmt.Printf("Email: %s\n", resp.Email)
	fmt.Printf("Config saved to: %s\n", configPath())

	return nil
}

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Refresh the auth token",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			api := client.New(&cfg.API)
			resp, err := api.Login(email, password)
			if err != nil {
				return err
			}

			cfg.API.AccountID = resp.AccountID
			cfg.API.AuthToken = resp.Token
			if err := cfg.Save(configPath()); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Printf("Logged in as %s\n", resp.Email)
			return nil
		},
	}

	cmd.Flags().String("email", "", "Account email (required)")
	cmd.Flags().String("password", "", "Account password (required)")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")

	return cmd
}

func registerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register as a supply-chain participant",
		Long:  `Register the configured account as a manufacturer or logistics provider. The ledger authority must verify the registration before carbon data is accepted.`,
		RunE:  runRegister,
	}

	cmd.Flags().String("role", "manufacturer", "Participant role: manufacturer or logistics")
	cmd.Flags().String("name", "", "Company name (required)")
	cmd.Flags().String("certification", "", "Certification reference")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runRegister(cmd *cobra.Command, args []string) error {
	role, _ := cmd.Flags().GetString("role")
	name, _ := cmd.Flags().GetString("name")
	certification, _ := cmd.Flags().GetString("certification")

	var kind models.ParticipantKind
	switch role {
	case "manufacturer":
		kind = models.KindManufacturer
	case "logistics", "logistics_provider":
		kind = models.KindLogisticsProvider
	default:
		return fmt.Errorf("unknown role %q (want manufacturer or logistics)", role)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	api := client.New(&cfg.API)
	if err := api.RegisterParticipant(kind, name, certification); err != nil {
		return err
	}

	fmt.Printf("Registered as %s. Awaiting authority verification.\n", kind)
	return nil
}

func depositCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Fund the account payment balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			usd, _ := cmd.Flags().GetInt64("usd")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			api := client.New(&cfg.API)
			balance, err := api.Deposit(usd)
			if err != nil {
				return err
			}

			fmt.Printf("Deposited $%d. Payment balance: %d base units\n", usd, balance)
			return nil
		},
	}

	cmd.Flags().Int64("usd", 0, "Amount in USD (required)")
	cmd.MarkFlagRequired("usd")

	return cmd
}

func productCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Manage registered products",
		Long:  `Register products on the ledger and list locally generated QR labels.`,
	}

	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Register a product with a fresh QR label",
		RunE:  runProductRegister,
	}
	registerCmd.Flags().String("name", "", "Product name (required)")
	registerCmd.Flags().Uint64("carbon", 0, "Manufacturing carbon in grams CO2e (required)")
	registerCmd.Flags().String("evidence", "", "Evidence reference for the carbon figure")
	registerCmd.MarkFlagRequired("name")
	registerCmd.MarkFlagRequired("carbon")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List locally generated product labels",
		RunE:  runProductList,
	}

	cmd.AddCommand(registerCmd)
	cmd.AddCommand(listCmd)
	return cmd
}

func runProductRegister(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	carbon, _ := cmd.Flags().GetUint64("carbon")
	evidence, _ := cmd.Flags().GetString("evidence")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	// Generate the label key that will be printed on the product
	raw := make([]byte, models.QRKeySize)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("failed to generate qr key: %w", err)
	}
	qrKey := hex.EncodeToString(raw)

	api := client.New(&cfg.API)
	productID, err := api.RegisterProduct(services.RegisterProductRequest{
		Name:                name,
		ManufacturingCarbon: carbon,
		QRKey:               qrKey,
		Evidence:            evidence,
	})
	if err != nil {
		return err
	}

	// Cache the label so it can be re-printed later
	db, err := labels.New(cfg.Data.LabelsDB)
	if err != nil {
		return fmt.Errorf("failed to open label cache: %w", err)
	}
	defer db.Close()

	if err := db.Save(&labels.Label{QRKey: qrKey, ProductID: productID, Name: name}); err != nil {
		return err
	}

	fmt.Printf("Product registered successfully!\n")
	fmt.Printf("Product ID: %d\n", productID)
	fmt.Printf("QR Key: %s\n", qrKey)

	return nil
}

func runProductList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := labels.New(cfg.Data.LabelsDB)
	if err != nil {
		return fmt.Errorf("failed to open label cache: %w", err)
	}
	defer db.Close()

	entries, err := db.List()
	if err != nil {
		return err
	}

	count, _ := db.Count()
	fmt.Printf("Generated Labels (%d total):\n", count)
	fmt.Printf("%-64s %-12s %-30s %-20s\n", "QR KEY", "PRODUCT ID", "NAME", "CREATED")
	fmt.Println(strings.Repeat("-", 126))
	for _, l := range entries {
		fmt.Printf("%-64s %-12d %-30s %-20s\n", l.QRKey, l.ProductID, l.Name, l.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	return nil
}

func logisticsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logistics",
		Short: "Submit logistics carbon for a product",
		Long:  `File a logistics carbon claim against a registered product. The caller must be a verified logistics provider; the claim counts toward the product only after the authority approves it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, _ := cmd.Flags().GetUint64("product")
			amount, _ := cmd.Flags().GetUint64("amount")
			evidence, _ := cmd.Flags().GetString("evidence")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			api := client.New(&cfg.API)
			if err := api.SubmitLogistics(productID, amount, evidence); err != nil {
				return err
			}

			fmt.Printf("Logistics carbon submitted for product %d. Awaiting authority decision.\n", productID)
			return nil
		},
	}

	cmd.Flags().Uint64("product", 0, "Product ID (required)")
	cmd.Flags().Uint64("amount", 0, "Logistics carbon in grams CO2e (required)")
	cmd.Flags().String("evidence", "", "Evidence reference for the carbon figure")
	cmd.MarkFlagRequired("product")
	cmd.MarkFlagRequired("amount")

	return cmd
}

func trackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "track <qr-key>",
		Short: "Track a product by its QR label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			api := client.New(&cfg.API)
			product, err := api.ProductByQR(args[0])
			if err != nil {
				return err
			}

			verified := "pending verification"
			if product.Verified {
				verified = "verified"
			}

			fmt.Printf("Product: %s (id %d, %s)\n", product.Name, product.ID, verified)
			fmt.Printf("Manufacturer: %s\n", product.Manufacturer)
			fmt.Printf("Manufacturing carbon: %d gCO2e\n", product.ManufacturingCarbon)
			fmt.Printf("Logistics carbon: %d gCO2e\n", product.LogisticsCarbon)
			fmt.Printf("Total carbon: %d gCO2e\n", product.TotalCarbon)

			return nil
		},
	}
}

func budgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Manage the consumer carbon budget",
	}

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Set the monthly carbon budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			monthly, _ := cmd.Flags().GetUint64("monthly")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			api := client.New(&cfg.API)
			if err := api.SetBudget(monthly); err != nil {
				return err
			}

			fmt.Printf("Monthly budget set to %d gCO2e\n", monthly)
			return nil
		},
	}
	setCmd.Flags().Uint64("monthly", 0, "Monthly budget in grams CO2e (required)")
	setCmd.MarkFlagRequired("monthly")

	showCmd := &cobra.Command{
		Use:   "show [identity]",
		Short: "Show a consumer budget",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			identity := cfg.API.AccountID
			if len(args) > 0 {
				identity = args[0]
			}

			api := client.New(&cfg.API)
			budget, err := api.Budget(identity)
			if err != nil {
				return err
			}

			fmt.Printf("Budget for %s:\n", budget.Identity)
			fmt.Printf("Monthly allowance: %d gCO2e\n", budget.MonthlyBudget)
			fmt.Printf("Current usage: %d gCO2e\n", budget.CurrentUsage)
			fmt.Printf("Offsets purchased: %d\n", budget.TotalOffsetsPurchased)
			return nil
		},
	}

	cmd.AddCommand(setCmd)
	cmd.AddCommand(showCmd)
	return cmd
}

func offsetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offsets",
		Short: "Purchase carbon offset credits",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, _ := cmd.Flags().GetUint64("amount")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			api := client.New(&cfg.API)
			receipt, err := api.PurchaseOffsets(amount)
			if err != nil {
				return err
			}

			fmt.Printf("Purchased %d carbon credits for %d base units\n", receipt.Amount, receipt.Cost)
			return nil
		},
	}

	cmd.Flags().Uint64("amount", 0, "Number of credits to purchase (required)")
	cmd.MarkFlagRequired("amount")

	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show ledger status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			api := client.New(&cfg.API)
			status, err := api.Status()
			if err != nil {
				return err
			}

			state := "active"
			if status.Paused {
				state = "paused"
			}

			fmt.Printf("Ledger: %s\n", state)
			fmt.Printf("Height: %d\n", status.Height)
			fmt.Printf("Credit price: %d base units\n", status.CreditPrice)
			fmt.Printf("Total credits issued: %d\n", status.TotalCarbonCredits)
			return nil
		},
	}
}
