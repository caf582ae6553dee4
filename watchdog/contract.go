package watchdog

type LeaseRenewer interface {
	// Stop останавливает продление и дожидается завершения текущего тика.
	Stop()
	// Done закрывается, когда цикл продления завершился (Stop или потеря аренды).
	Done() <-chan struct{}
}
