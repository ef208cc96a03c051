/*
Package clients provides a FileIO that talks to a remote storage gateway.

GatewayClient forwards every operation to the routes in package api, so a
process without backend credentials can read and write through a gateway
that holds them. Failures answered by the gateway come back as
*interfaces.FailureError values of the same kind the gateway raised, with
the HTTP status and message kept in a *RemoteError cause.

	client, err := clients.NewGatewayClient(ctx, "127.0.0.1:8080", 30*time.Second)
	if err != nil {
	    return err
	}

	out, _ := client.NewOutputFile(ctx, "s3://warehouse/db/t1/data.parquet")
	_, _ = out.Write(data)
	if err := out.Close(); err != nil {
	    // errors.Is(err, interfaces.ErrAlreadyExists) etc.
	}

Output handles buffer in memory and upload on Close; input handles open the
download on the first Read.
*/
package clients
