// Package cnwlicense implements product-key activation for the CNW license server.
//
// A Service checks a presented product key against a licensestore.Store,
// enforces the key's activation quota and records the machine's activation.
// It then returns a credential signed by an Issuer:
//
//	issuer, err := cnwlicense.NewIssuer([]byte(secret))
//	svc := cnwlicense.NewService(store, issuer)
//	res, err := svc.Activate(ctx, "ABC-123", machineID)
//
// Credentials are HS256 JWTs carrying machine_id, product_key and exp. Any
// holder of the signing secret can check them offline with Issuer.Verify.
//
// # Client
//
// Applications activate against a running server with a Client:
//
//	id, _ := cnwlicense.MachineID()
//	client := cnwlicense.NewClient("https://license.example.com", cnwlicense.WithMachineID(id))
//	resp, err := client.Activate(ctx, cnwlicense.ActivateRequest{ProductKey: "ABC-123"})
//	if errors.Is(err, cnwlicense.ErrQuotaExceeded) {
//	    // no slots left on this key
//	}
package cnwlicense
