// terminal is the line-driven POS client: login, shift open/close, cart
// building, checkout, parked orders. It is the composition root — config,
// logger, session store, API client, services and the receipt worker pool
// are all wired here.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"movilpos/internal/api"
	"movilpos/internal/catalog"
	"movilpos/internal/checkout"
	"movilpos/internal/config"
	"movilpos/internal/infra"
	"movilpos/internal/sale"
	"movilpos/internal/search"
	"movilpos/internal/session"
	"movilpos/internal/shift"
	"movilpos/internal/worker"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Session store + receipt pipeline need Redis; without it the terminal
	// still sells, with an in-memory session and no printed receipts.
	var sess session.Store
	var dispatcher *worker.Dispatcher
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		var err error
		rdb, err = infra.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable — using in-memory session, receipts disabled")
			sess = session.NewMemoryStore()
		} else {
			sess = session.NewRedisStore(rdb, cfg.DeviceIP)
			dispatcher = worker.NewDispatcher(rdb)
			mailer := infra.NewMailer(cfg)
			handlers := &worker.Handlers{
				Receipt: worker.NewReceiptWorker(cfg.ReceiptStoragePath, dispatcher),
				Email:   worker.NewEmailWorker(mailer),
			}
			worker.StartPool(ctx, rdb, handlers, cfg.WorkerPoolSize)
		}
	} else {
		sess = session.NewMemoryStore()
	}

	client := api.NewClient(cfg.APIBaseURL, cfg.DeviceIP, cfg.HTTPTimeout(), sess)
	cat := catalog.NewService(client)
	guard := shift.NewGuard(client)
	chk := checkout.NewService(client, guard, cat, dispatcher, cfg.BusinessName)
	draft := sale.NewDraft()

	searcher := search.NewDebouncer(cfg.SearchDebounce(), cat.SearchProducts,
		func(query string, products []catalog.Product) {
			fmt.Printf("\n· resultados para %q:\n", query)
			for _, p := range products {
				fmt.Printf("  %-8s %-24s $%s  (stock %d)\n", p.ID, p.Name, p.Price.StringFixed(0), p.Stock)
			}
			fmt.Print("> ")
		})
	defer searcher.Stop()

	t := &terminal{cfg: cfg, client: client, cat: cat, guard: guard, chk: chk, draft: draft, searcher: searcher, rdb: rdb}
	t.run(ctx)
}

type terminal struct {
	cfg      *config.Config
	client   *api.Client
	cat      *catalog.Service
	guard    *shift.Guard
	chk      *checkout.Service
	draft    *sale.Draft
	searcher *search.Debouncer
	rdb      *redis.Client // nil when Redis is unavailable
}

func (t *terminal) run(ctx context.Context) {
	fmt.Println("movilpos — escriba 'help' para ver los comandos")
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "exit" || line == "quit" {
			return
		}
		if line != "" {
			t.dispatch(ctx, line)
		}
		fmt.Print("> ")
	}
}

func (t *terminal) dispatch(ctx context.Context, line string) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	var err error
	switch cmd {
	case "help":
		t.help()
	case "login":
		err = t.login(ctx, args)
	case "logout":
		err = t.client.Logout(ctx)
	case "shift":
		err = t.shiftStatus(ctx)
	case "open":
		err = t.openShift(ctx, args)
	case "close":
		err = t.closeShift(ctx, args)
	case "search":
		t.searcher.Input(ctx, strings.Join(args, " "))
	case "scan":
		err = t.scan(ctx, args)
	case "add":
		err = t.add(ctx, args)
	case "qty":
		err = t.qty(args)
	case "rm":
		err = t.remove(args)
	case "cart":
		t.showCart()
	case "clear":
		t.draft.ClearCart()
	case "reset":
		t.draft.ClearCart()
		t.draft.ResetSaleData()
	case "customer":
		err = t.customer(ctx, args)
	case "type":
		t.draft.SetOrderType(strings.Join(args, " "))
	case "name":
		t.draft.SetSaleName(strings.Join(args, " "))
	case "coupon":
		err = t.coupon(ctx, args)
	case "nodisc":
		t.draft.ClearDiscount()
	case "checkout":
		err = t.checkout(ctx, args)
	case "pause":
		err = t.pause(ctx)
	case "resume":
		err = t.resume(ctx, args)
	case "dlq":
		err = t.dlqStatus(ctx)
	default:
		fmt.Println("comando desconocido — 'help' lista los comandos")
	}

	if err != nil {
		t.report(err)
	}
}

func (t *terminal) help() {
	fmt.Print(`  login <usuario> <clave>      iniciar sesión
  shift | open <caja> <base> | close <efectivo> [notas]
  search <texto> | scan <codigo>
  add <producto> [cant] | qty <producto> <cant> | rm <producto>
  cart | clear | reset
  customer <texto> | type <etiqueta> | name <etiqueta>
  coupon <codigo> | nodisc
  checkout cash <recibido> [email] | checkout transfer [email]
  pause | resume <orden>
  dlq
  exit
`)
}

// report prints user-facing errors. Session expiry forces re-login;
// everything else is an alert, never a crash.
func (t *terminal) report(err error) {
	switch {
	case errors.Is(err, api.ErrSessionExpired):
		fmt.Println("! sesión expirada — inicie sesión de nuevo con 'login'")
	case errors.Is(err, shift.ErrNoOpenShift):
		fmt.Println("! no hay turno abierto — abra uno con 'open <caja> <base>'")
	case errors.Is(err, checkout.ErrInsufficientCash):
		fmt.Println("! el monto recibido no alcanza el total")
	case errors.Is(err, checkout.ErrEmptyCart):
		fmt.Println("! el carrito está vacío")
	default:
		fmt.Println("!", err)
	}
}

func (t *terminal) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("uso: login <usuario> <clave>")
	}
	profile, err := t.client.Login(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Printf("· sesión iniciada: %s (%s)\n", profile.Name, profile.Role)

	// Best-effort shift check — a missing shift warns, it never blocks.
	if _, err := t.guard.Active(ctx); errors.Is(err, shift.ErrNoOpenShift) {
		fmt.Println("· aviso: no hay turno abierto; se requiere uno para cobrar")
	}
	return nil
}

func (t *terminal) shiftStatus(ctx context.Context) error {
	sh, err := t.guard.Active(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("· turno %s en %s (%s) — base $%s, efectivo esperado $%s\n",
		sh.ID, sh.CashRegisterName, sh.WarehouseName,
		sh.BaseAmount.StringFixed(0), sh.ExpectedCash.StringFixed(0))
	return nil
}

func (t *terminal) openShift(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("uso: open <caja> <base>")
	}
	base, err := decimal.NewFromString(args[1])
	if err != nil {
		return fmt.Errorf("monto base inválido: %w", err)
	}
	sh, err := t.guard.Open(ctx, args[0], base)
	if err != nil {
		return err
	}
	fmt.Printf("· turno abierto: %s en %s\n", sh.ID, sh.CashRegisterName)
	return nil
}

func (t *terminal) closeShift(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("uso: close <efectivo contado> [notas]")
	}
	counted, err := decimal.NewFromString(args[0])
	if err != nil {
		return fmt.Errorf("monto inválido: %w", err)
	}
	sh, err := t.guard.Active(ctx)
	if err != nil {
		return err
	}
	res, err := t.guard.Close(ctx, sh.ID, counted, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Printf("· turno cerrado — esperado $%s, contado $%s, diferencia $%s\n",
		res.ExpectedCash.StringFixed(0), res.CountedCash.StringFixed(0), res.Difference.StringFixed(0))
	return nil
}

// dlqStatus lists the dead-letter queue sizes of the receipt pipeline.
func (t *terminal) dlqStatus(ctx context.Context) error {
	if t.rdb == nil {
		return errors.New("redis no disponible — el canal de recibos está deshabilitado")
	}
	for _, q := range []string{worker.QueueReceipt, worker.QueueEmail} {
		n, err := worker.DLQLength(ctx, t.rdb, q)
		if err != nil {
			return err
		}
		fmt.Printf("  %s%s: %d trabajos fallidos\n", worker.DLQPrefix, q, n)
	}
	return nil
}

func (t *terminal) scan(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("uso: scan <codigo de barras>")
	}
	p, err := t.cat.GetProductByBarcode(ctx, args[0])
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return errors.New("código de barras no registrado")
		}
		return err
	}
	t.addProduct(ctx, *p, 1)
	return nil
}

func (t *terminal) add(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("uso: add <producto> [cantidad]")
	}
	qty := 1
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return errors.New("cantidad inválida")
		}
		qty = n
	}
	p, err := t.cat.GetProduct(ctx, args[0])
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return errors.New("producto no encontrado")
		}
		return err
	}
	t.addProduct(ctx, *p, qty)
	return nil
}

func (t *terminal) addProduct(ctx context.Context, p catalog.Product, qty int) {
	if t.draft.Len() == 0 {
		// First item of a fresh draft: warn (never block) when no shift.
		if _, err := t.guard.Active(ctx); errors.Is(err, shift.ErrNoOpenShift) {
			fmt.Println("· aviso: no hay turno abierto; podrá armar el carrito pero no cobrar")
		}
	}
	if t.draft.AddItem(p, qty) {
		fmt.Printf("· aviso: la cantidad supera el stock conocido (%d)\n", p.Stock)
	}
	fmt.Printf("· %s x%d — subtotal $%s\n", p.Name, qty, t.draft.Subtotal().StringFixed(0))
}

func (t *terminal) qty(args []string) error {
	if len(args) != 2 {
		return errors.New("uso: qty <producto> <cantidad>")
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return errors.New("cantidad inválida")
	}
	if !t.draft.UpdateQuantity(args[0], n) {
		fmt.Println("· aviso: cantidad rechazada, supera el stock conocido")
	}
	return nil
}

func (t *terminal) remove(args []string) error {
	if len(args) != 1 {
		return errors.New("uso: rm <producto>")
	}
	t.draft.RemoveItem(args[0])
	return nil
}

func (t *terminal) showCart() {
	items := t.draft.Items()
	if len(items) == 0 {
		fmt.Println("· carrito vacío")
		return
	}
	for _, li := range items {
		fmt.Printf("  %-8s %-24s x%-3d $%s\n", li.ProductID, li.ProductName, li.Quantity, li.Subtotal().StringFixed(0))
	}
	name, _ := t.draft.Customer()
	pct, _, code := t.draft.Discount()
	totals := checkout.ComputeTotals(t.draft.Subtotal(), pct)
	fmt.Printf("  cliente: %s", name)
	if code != "" {
		fmt.Printf("  cupón: %s (%s%%)", code, pct.StringFixed(0))
	}
	fmt.Printf("\n  subtotal $%s  descuento $%s  iva $%s  TOTAL $%s\n",
		totals.Subtotal.StringFixed(0), totals.DiscountAmount.StringFixed(0),
		totals.Tax.StringFixed(0), totals.Total.StringFixed(0))
}

func (t *terminal) customer(ctx context.Context, args []string) error {
	if len(args) < 1 {
		t.draft.SetCustomer(sale.DefaultCustomerName, sale.DefaultCustomerID)
		fmt.Println("· cliente restablecido a", sale.DefaultCustomerName)
		return nil
	}
	matches, err := t.cat.ListCustomers(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return errors.New("sin clientes que coincidan")
	}
	t.draft.SetCustomer(matches[0].Name, matches[0].ID)
	fmt.Println("· cliente:", matches[0].Name)
	return nil
}

func (t *terminal) coupon(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("uso: coupon <codigo>")
	}
	cp, err := t.cat.ValidateCoupon(ctx, args[0])
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return errors.New("cupón no válido")
		}
		return err
	}
	t.draft.SetDiscount(cp.Percentage, cp.ID, cp.Code)
	fmt.Printf("· cupón %s aplicado: %s%%\n", cp.Code, cp.Percentage.StringFixed(0))
	return nil
}

func (t *terminal) checkout(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("uso: checkout cash <recibido> [email] | checkout transfer [email]")
	}

	// Shift gate before the payment modal; Submit re-validates anyway.
	if _, err := t.guard.Active(ctx); err != nil {
		return err
	}

	input := checkout.PaymentInput{Method: args[0]}
	rest := args[1:]
	if args[0] == checkout.PaymentCash {
		if len(rest) < 1 {
			return errors.New("uso: checkout cash <recibido> [email]")
		}
		received, err := decimal.NewFromString(rest[0])
		if err != nil {
			return fmt.Errorf("monto inválido: %w", err)
		}
		input.AmountReceived = received
		rest = rest[1:]
	}
	if len(rest) > 0 {
		input.CustomerEmail = rest[0]
	}

	completed, err := t.chk.Submit(ctx, t.draft, input)
	if err != nil {
		return err
	}
	fmt.Printf("· venta registrada — factura %s, total $%s, recibido $%s, cambio $%s\n",
		completed.InvoiceNumber, completed.Total.StringFixed(0),
		completed.AmountReceived.StringFixed(0), completed.Change.StringFixed(0))
	return nil
}

func (t *terminal) pause(ctx context.Context) error {
	id, err := t.chk.Pause(ctx, t.draft)
	if err != nil {
		return err
	}
	fmt.Println("· orden pausada:", id)
	return nil
}

func (t *terminal) resume(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("uso: resume <orden>")
	}
	res, err := t.chk.Resume(ctx, t.draft, args[0])
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return errors.New("orden pausada no encontrada")
		}
		return err
	}
	fmt.Printf("· orden recuperada (%d items", t.draft.Len())
	if res.Placeholders > 0 {
		fmt.Printf(", %d con producto no disponible", res.Placeholders)
	}
	fmt.Println(")")
	return nil
}
